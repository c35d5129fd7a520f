package bootstrap

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/logger"
)

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	Padding(0, 2).
	Bold(true)

// Banner prints the tool header.
func Banner(c console.Console) {
	c.Println(bannerStyle.Render("teachcut\nvideo service deploy tool"))
}

type menuItem struct {
	label string
	// final actions leave the menu once they return.
	final bool
	run   func(o *Orchestrator, ctx context.Context) error
}

var menuItems = []menuItem{
	{label: "Quick deploy (recommended)", final: true, run: (*Orchestrator).QuickDeploy},
	{label: "Install dependencies", run: (*Orchestrator).InstallDependencies},
	{label: "Configure credentials", run: (*Orchestrator).ConfigureCredentials},
	{label: "Run tests", run: func(o *Orchestrator, ctx context.Context) error {
		o.RunTests(ctx)
		return ctx.Err()
	}},
	{label: "Start service", final: true, run: (*Orchestrator).StartService},
	{label: "Exit", final: true},
}

// RunMenu shows the numbered menu until an action ends it or input is
// closed. Leaving the menu by interrupt or end of input returns nil. Action
// failures are reported and end in nil; only an interrupt that reached an
// action is returned.
func (o *Orchestrator) RunMenu(ctx context.Context) error {
	Banner(o.Console)
	for {
		item, err := o.choose(ctx)
		if err != nil {
			if errors.Is(err, console.ErrInputClosed) || ctx.Err() != nil {
				o.Console.Println()
				o.Console.Println("Goodbye!")
				return nil
			}
			return err
		}
		if item.run == nil {
			o.Console.Println("Goodbye!")
			return nil
		}

		err = item.run(o, ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			logger.Warn("[Menu] %s: %v", item.label, err)
			console.Warn(o.Console, "%s did not complete: %v", item.label, err)
		}
		if item.final {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := o.Console.Prompt(ctx, "Press Enter to continue", ""); err != nil {
			return nil
		}
	}
}

// choose prompts until a valid menu number is entered.
func (o *Orchestrator) choose(ctx context.Context) (menuItem, error) {
	o.Console.Println()
	o.Console.Println("Choose an action:")
	o.Console.Println()
	for i, item := range menuItems {
		o.Console.Printf("  %d. %s\n", i+1, item.label)
	}
	o.Console.Println()
	for {
		answer, err := o.Console.Prompt(ctx, "Enter an option (1-6)", "")
		if err != nil {
			return menuItem{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 1 && n <= len(menuItems) {
			return menuItems[n-1], nil
		}
		console.Fail(o.Console, "Invalid option %q, please choose 1-%d", answer, len(menuItems))
	}
}
