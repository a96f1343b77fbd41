package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/order"
)

// runOrderCmd issues a signed explicit reversal order binding one subject
// and one proposal. The token is printed bare so it can be piped straight
// into an evaluate request.
func runOrderCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("order", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		subjectID  string
		proposalID string
		noSafer    bool
		ttl        time.Duration
	)
	cmd.StringVar(&subjectID, "subject", "", "Subject the order applies to (REQUIRED)")
	cmd.StringVar(&proposalID, "proposal", "", "Proposal the order authorizes (REQUIRED)")
	cmd.BoolVar(&noSafer, "no-safer", false, "Record the issuer's assertion that no safer alternative remains")
	cmd.DurationVar(&ttl, "ttl", order.DefaultTTL, "Order lifetime")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if subjectID == "" || proposalID == "" {
		fmt.Fprintln(stderr, "Error: --subject and --proposal are required")
		cmd.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: config: %v\n", err)
		return 2
	}
	if cfg.OrderSecret == "" {
		fmt.Fprintln(stderr, "Error: PAWL_ORDER_SECRET is not set")
		return 2
	}

	m, err := order.NewManager([]byte(cfg.OrderSecret), order.WithTTL(ttl))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	token, err := m.Issue(subjectID, proposalID, noSafer)
	if err != nil {
		fmt.Fprintf(stderr, "Error: issue order: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, token)
	return 0
}
