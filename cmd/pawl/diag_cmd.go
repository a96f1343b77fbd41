package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
	"github.com/Mindburn-Labs/pawl/pkg/diagnostic"
	"github.com/Mindburn-Labs/pawl/pkg/envelope"
	"github.com/Mindburn-Labs/pawl/pkg/fairness"
)

const (
	diagMemoryLimit = 64 << 20 // 64MB per module run
	diagRunTimeout  = 5 * time.Second
	diagEpoch       = time.Minute
)

// diagReport is the offline no-safer-alternative evidence for one subject.
// It is advisory output: nothing here touches the ledger or capability
// state, and only the final boolean is ever handed to an evaluate request.
type diagReport struct {
	SubjectID          string             `json:"subject_id"`
	Epochs             int                `json:"epochs"`
	CohortSubjects     int                `json:"cohort_subjects"`
	Labels             fairness.Labels    `json:"labels"`
	Drain              fairness.DrainFlag `json:"drain"`
	Fence              envelope.FenceView `json:"fence"`
	NoSaferAlternative bool               `json:"no_safer_alternative"`
}

// runDiagCmd executes a sandboxed diagnostic module over a probe log and
// derives the no-safer-alternative evidence for one subject. Each probe
// line goes to the module's stdin; each verdict on its stdout becomes one
// cohort snapshot.
func runDiagCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("diag", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		modulePath   string
		probesPath   string
		subjectID    string
		tierName     string
		jurisdiction string
		taskTag      string
		roh          float64
		jsonOutput   bool
	)
	cmd.StringVar(&modulePath, "module", "", "WASM diagnostic module (REQUIRED)")
	cmd.StringVar(&probesPath, "probes", "", "Probe input file, one JSON probe per line (REQUIRED)")
	cmd.StringVar(&subjectID, "subject", "", "Subject whose evidence to derive (REQUIRED)")
	cmd.StringVar(&tierName, "tier", "controlled_human", "Cohort capability tier")
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Cohort jurisdiction tag")
	cmd.StringVar(&taskTag, "task", "", "Cohort task tag")
	cmd.Float64Var(&roh, "roh", 0, "Subject's current risk-of-harm score")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if modulePath == "" || probesPath == "" || subjectID == "" {
		fmt.Fprintln(stderr, "Error: --module, --probes, and --subject are required")
		cmd.Usage()
		return 2
	}
	tier, err := capability.ParseCapabilityState(tierName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	module, err := os.ReadFile(modulePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read module: %v\n", err)
		return 2
	}
	probes, err := os.Open(probesPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open probes: %v\n", err)
		return 2
	}
	defer probes.Close()

	ctx := context.Background()
	host, err := diagnostic.NewHost(ctx, diagnostic.Config{
		MemoryLimitBytes: diagMemoryLimit,
		Timeout:          diagRunTimeout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer host.Close(ctx)

	report, err := deriveEvidence(ctx, host, module, probes, subjectID, tier, jurisdiction, taskTag, roh)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "%sDiagnostic evidence for %s%s\n", ColorBold+ColorPurple, report.SubjectID, ColorReset)
	fmt.Fprintf(stdout, "  epochs               %d (cohort of %d)\n", report.Epochs, report.CohortSubjects)
	fmt.Fprintf(stdout, "  overloaded           %t\n", report.Labels.Overloaded)
	fmt.Fprintf(stdout, "  recovery             %t\n", report.Labels.Recovery)
	fmt.Fprintf(stdout, "  unfair drain         %t (budget %.3f vs peer median %.3f)\n",
		report.Drain.UnfairDrain, report.Drain.Budget, report.Drain.PeerMedianBudget)
	fmt.Fprintf(stdout, "  cooldown advised     %t\n", report.Fence.CohortCooldownAdvised)
	if report.NoSaferAlternative {
		fmt.Fprintf(stdout, "\n%sno_safer_alternative = true%s\n", ColorBold+ColorRed, ColorReset)
	} else {
		fmt.Fprintf(stdout, "\n%sno_safer_alternative = false%s\n", ColorBold+ColorGreen, ColorReset)
	}
	return 0
}

// deriveEvidence runs every probe through the module, folds the verdicts
// into cohort snapshots, and joins drain, nature, and fence signals the
// only way they may reach a reversal decision.
func deriveEvidence(ctx context.Context, host diagnostic.Runner, module []byte, probes io.Reader,
	subjectID string, tier capability.CapabilityState, jurisdiction, taskTag string, roh float64,
) (*diagReport, error) {
	base := time.Now().UTC()
	var (
		snapshots []fairness.Snapshot
		history   []fairness.Rails
		last      *diagnostic.Verdict
		cohort    = map[string]struct{}{}
		epoch     int
	)

	scanner := bufio.NewScanner(probes)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		v, err := host.Run(ctx, module, append([]byte(nil), line...))
		if err != nil {
			return nil, fmt.Errorf("probe %d: %w", epoch+1, err)
		}
		at := base.Add(time.Duration(epoch) * diagEpoch)
		snapshots = append(snapshots, v.Snapshot(at, tier, jurisdiction, taskTag))
		cohort[v.SubjectID] = struct{}{}
		if v.SubjectID == subjectID {
			history = append(history, v.Rails(roh))
			last = &v
		}
		epoch++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read probes: %w", err)
	}
	if last == nil {
		return nil, fmt.Errorf("no verdict for subject %s in %d probes", subjectID, epoch)
	}

	flags := fairness.ComputeUnfairDrain(diagDrainConfig(), snapshots)
	var drain fairness.DrainFlag
	for _, f := range flags {
		if f.SubjectID == subjectID {
			drain = f // newest wins; flags are ordered by subject then time
		}
	}

	labels := fairness.EvalLabels(history, drain.UnfairDrain, diagNatureConfig())

	rails := last.Rails(roh)
	view := envelope.NewMonitor(envelope.DefaultFenceConfig()).Evaluate(envelope.FenceInput{
		ViewID:       fmt.Sprintf("diag-%s-%d", subjectID, epoch),
		SubjectID:    subjectID,
		CohortID:     jurisdiction,
		EpochIndex:   int64(epoch),
		RoHScore:     roh,
		TolFear:      &rails.Fear,
		TolPain:      &rails.Pain,
		TolDecay:     &rails.Decay,
		TolLifeforce: &rails.Lifeforce,
	})

	return &diagReport{
		SubjectID:      subjectID,
		Epochs:         len(history),
		CohortSubjects: len(cohort),
		Labels:         labels,
		Drain:          drain,
		Fence:          view,
		NoSaferAlternative: fairness.ComputeNoSaferAlternative(fairness.Evidence{
			Labels: labels,
			Drain:  drain,
			Fence:  view,
		}),
	}, nil
}

func diagDrainConfig() fairness.DrainConfig {
	return fairness.DrainConfig{
		Window:          10 * diagEpoch,
		DeltaUnfair:     0.15,
		OverloadFracMin: 0.5,
	}
}

func diagNatureConfig() fairness.NatureConfig {
	over := fairness.OverloadedConfig{
		WindowEpochs: 3,
		DecayMin:     0.6,
		PowerMin:     0.5,
		LifeforceMax: 0.4,
		FearMin:      0.5,
		PainMin:      0.4,
	}
	return fairness.NatureConfig{
		CalmStable: fairness.CalmStableConfig{
			WindowEpochs: 3,
			LifeforceMin: 0.6,
			FearMax:      0.3,
			PainMax:      0.3,
			DecayMax:     0.4,
		},
		Overloaded: over,
		Recovery: fairness.RecoveryConfig{
			WindowEpochs:          3,
			GapEpochs:             1,
			RecoveryWindowEpochs:  3,
			MinOverloadedFraction: 0.5,
			DeltaDecayMin:         0.10,
			DeltaLifeforceMin:     0.10,
			DeltaFearMin:          0.05,
			DeltaPainMin:          0.05,
			Overloaded:            over,
		},
	}
}
