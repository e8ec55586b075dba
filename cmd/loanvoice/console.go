package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/loanvoice/loanvoice/internal/call"
	"github.com/loanvoice/loanvoice/internal/wire"
)

// console is the terminal surface of the client: it renders lifecycle
// transitions, decision and verification handoffs, and feeds typed
// commands to the controller.
type console struct {
	out    io.Writer
	errOut io.Writer
}

func (c *console) ShowDecision(result wire.EligibilityResult, structured map[string]any) {
	fmt.Fprintln(c.out)
	if result.Approved() {
		fmt.Fprintln(c.out, "=== loan decision: APPROVED ===")
	} else {
		fmt.Fprintln(c.out, "=== loan decision: NOT APPROVED ===")
	}
	if result.EligibilityStatus != "" {
		fmt.Fprintf(c.out, "  status      : %s\n", result.EligibilityStatus)
	}
	if result.EligibilityScore != 0 {
		fmt.Fprintf(c.out, "  score       : %.1f\n", result.EligibilityScore)
	} else if result.Score != 0 {
		fmt.Fprintf(c.out, "  score       : %.1f\n", result.Score)
	}
	if result.RiskLevel != "" {
		fmt.Fprintf(c.out, "  risk level  : %s\n", result.RiskLevel)
	}
	if result.CreditTier != "" {
		fmt.Fprintf(c.out, "  credit tier : %s\n", result.CreditTier)
	}
	if result.DebtToIncomeRatio != 0 {
		fmt.Fprintf(c.out, "  dti         : %.2f\n", result.DebtToIncomeRatio)
	}
	if result.ApplicationID != 0 {
		fmt.Fprintf(c.out, "  application : %d\n", result.ApplicationID)
	}
	if result.Message != "" {
		fmt.Fprintf(c.out, "  %s\n", result.Message)
	}
	if len(structured) > 0 {
		fmt.Fprintf(c.out, "  collected fields: %d\n", len(structured))
	}
}

func (c *console) BeginVerification(req wire.VerificationRequest) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "=== document verification required ===")
	if req.Message != "" {
		fmt.Fprintf(c.out, "  %s\n", req.Message)
	}
	if req.ApplicationID != 0 {
		fmt.Fprintf(c.out, "  application : %d\n", req.ApplicationID)
	} else {
		fmt.Fprintln(c.out, "  application id pending; upload after the server assigns one")
	}
	fmt.Fprintln(c.out, "  upload your documents, then type /uploaded [kind] and /verified [kind]")
	fmt.Fprintln(c.out, "  type /done when every document has been checked")
}

func (c *console) showPhase(p call.Phase) {
	fmt.Fprintf(c.out, "[%s]\n", p)
}

func (c *console) showError(err error) {
	fmt.Fprintf(c.errOut, "error: %v\n", err)
}

// runConsole reads commands from r until EOF, /quit, or ctx cancellation.
// It drives the controller; the controller's own shutdown path handles the
// end-of-session farewell.
func (c *console) runConsole(ctx context.Context, r io.Reader, ctrl *call.Controller) error {
	fmt.Fprintln(c.out, "commands: /connect /start /end /uploaded /verified /done /quit, anything else is sent as text")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			ctrl.Shutdown()
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, arg := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
		}
		switch cmd {
		case "/connect":
			ctrl.Connect(ctx)
		case "/start":
			ctrl.StartCall(ctx)
		case "/end":
			ctrl.EndCall()
		case "/uploaded":
			ctrl.DocumentUploaded(arg)
		case "/verified":
			ctrl.DocumentVerified(arg)
		case "/done":
			ctrl.VerificationCompleted()
		case "/quit", "/exit":
			ctrl.Shutdown()
			return nil
		default:
			if strings.HasPrefix(line, "/") {
				fmt.Fprintf(c.errOut, "unknown command %s\n", line)
				continue
			}
			ctrl.SendText(line)
		}
	}
}
