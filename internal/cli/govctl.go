package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"resgov/internal/cgroup"
	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/metrics"
	"resgov/internal/orchestrator"
	"resgov/internal/systemd"
	"resgov/internal/tiering"
	"resgov/pkg/types"
)

type govDeps struct {
	cfg     config.Config
	log     zerolog.Logger
	sd      systemd.Client
	tiering *tiering.Manager
	cgroups *cgroup.Configurator
	orch    *orchestrator.Orchestrator
}

func buildGovDeps(cfgPath, logLevel string) (*govDeps, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(logLevel)
	run := execx.System{}
	sd := systemd.New(run)
	tm := tiering.NewManager(cfg.Tiering, cfg.OOMGuard, run, sd, log)
	cc := cgroup.NewConfigurator(cfg.Cgroup, sd, log)
	orch := orchestrator.New(cfg, tm, cc, sd, metrics.GopsutilReader{}, log, os.Geteuid)
	return &govDeps{cfg: cfg, log: log, sd: sd, tiering: tm, cgroups: cc, orch: orch}, nil
}

func profileByName(cfg config.Config, name string) (types.ServiceResourceProfile, error) {
	profiles, err := cfg.Profiles()
	if err != nil {
		return types.ServiceResourceProfile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return types.ServiceResourceProfile{}, fmt.Errorf("no profile named %q in config", name)
}

// BuildGovctlCmd constructs the govctl command tree: the orchestrator run
// plus direct access to its sub-steps for operators.
func BuildGovctlCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "govctl",
		Short:         "Govern resource budgets for co-located inference services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envStr("RESGOV_CONFIG", ""), "Path to resgov config file (yaml/json/toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envStr("RESGOV_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Full governance run: tiering, cgroup profiles, OOM guard, verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildGovDeps(cfgPath, logLevel)
			if err != nil {
				return err
			}
			summary, err := d.orch.Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	root.AddCommand(runCmd)

	tieringCmd := &cobra.Command{Use: "tiering", Short: "Manage swap tiers and memory-pressure tunables"}
	tieringEnsure := &cobra.Command{
		Use:   "ensure",
		Short: "Provision disk and compressed swap tiers, tune sysctls",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildGovDeps(cfgPath, logLevel)
			if err != nil {
				return err
			}
			if os.Geteuid() != 0 {
				return orchestrator.ErrPrivilege("swap provisioning")
			}
			ctx := cmd.Context()
			return withHostLock(d.cfg.LockPath, func() error {
				diskBytes, err := d.cfg.DiskSwapBytes()
				if err != nil {
					return err
				}
				tier, outcome, err := d.tiering.EnsureDiskSwap(ctx, diskBytes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", tier.Device, outcome)
				if d.cfg.Tiering.Zram.Enabled {
					zramBytes, err := d.cfg.ZramBytes()
					if err != nil {
						return err
					}
					tier, outcome, err := d.tiering.EnsureCompressedSwap(ctx, zramBytes)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", tier.Device, outcome)
				}
				return d.tiering.TuneMemoryPressure(ctx)
			})
		},
	}
	tieringCmd.AddCommand(tieringEnsure)
	root.AddCommand(tieringCmd)

	cgroupCmd := &cobra.Command{Use: "cgroup", Short: "Apply or inspect per-service resource profiles"}
	cgroupApply := &cobra.Command{
		Use:   "apply [service]",
		Short: "Apply one profile, or all profiles in dependency order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildGovDeps(cfgPath, logLevel)
			if err != nil {
				return err
			}
			if os.Geteuid() != 0 {
				return orchestrator.ErrPrivilege("cgroup profile apply")
			}
			var results []types.ApplyResult
			if err := withHostLock(d.cfg.LockPath, func() error {
				if len(args) == 1 {
					p, err := profileByName(d.cfg, args[0])
					if err != nil {
						return err
					}
					results = []types.ApplyResult{d.cgroups.ApplyProfile(cmd.Context(), p)}
					return nil
				}
				profiles, err := d.cfg.Profiles()
				if err != nil {
					return err
				}
				results = d.cgroups.ApplyAll(cmd.Context(), profiles)
				return nil
			}); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s", r.Unit, r.Outcome)
				if r.Reason != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  (%s)", r.Reason)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				if r.Outcome == types.OutcomeFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d profile(s) failed to apply", failed)
			}
			return nil
		},
	}
	cgroupDiff := &cobra.Command{
		Use:   "diff <service>",
		Short: "Show active vs desired resource-control configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildGovDeps(cfgPath, logLevel)
			if err != nil {
				return err
			}
			p, err := profileByName(d.cfg, args[0])
			if err != nil {
				return err
			}
			current, desired, err := d.cgroups.Diff(p)
			if err != nil {
				return err
			}
			if current == desired {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no changes\n", p.Unit())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--- active\n%s\n+++ desired\n%s", current, desired)
			return nil
		},
	}
	cgroupCmd.AddCommand(cgroupApply, cgroupDiff)
	root.AddCommand(cgroupCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every managed service is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildGovDeps(cfgPath, logLevel)
			if err != nil {
				return err
			}
			profiles, err := d.cfg.Profiles()
			if err != nil {
				return err
			}
			unhealthy := 0
			for _, p := range types.SortProfiles(profiles) {
				active, err := d.sd.IsActive(cmd.Context(), p.Unit())
				state := "active"
				if err != nil {
					state = "unknown: " + err.Error()
				} else if !active {
					state = "inactive"
				}
				if state != "active" {
					unhealthy++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", p.Unit(), state)
			}
			if unhealthy > 0 {
				return fmt.Errorf("%d service(s) unhealthy", unhealthy)
			}
			return nil
		},
	}
	root.AddCommand(verifyCmd)
	return root
}

// GovctlMain runs the govctl CLI and returns the process exit code.
func GovctlMain() int {
	if err := BuildGovctlCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		switch {
		case orchestrator.IsPrivilege(err):
			return 4
		case orchestrator.IsLockBusy(err):
			return 3
		default:
			return 1
		}
	}
	return 0
}
