package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/nurturemesh"
	"github.com/hupe1980/nurturemesh/config"
	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/directory"
	"github.com/hupe1980/nurturemesh/engine"
	"github.com/hupe1980/nurturemesh/leadparse"
	"github.com/hupe1980/nurturemesh/leadstore/sqlite"
	"github.com/hupe1980/nurturemesh/logging"
	"github.com/hupe1980/nurturemesh/notify"
	"github.com/hupe1980/nurturemesh/nurture"
	"github.com/hupe1980/nurturemesh/personalize/anthropic"
	"github.com/hupe1980/nurturemesh/schedule"
	"github.com/hupe1980/nurturemesh/templateindex"
	oaiembed "github.com/hupe1980/nurturemesh/templateindex/openai"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nurturemesh",
		Short: "Automated sales-lead nurturing orchestrator",
		Long: `nurturemesh moves sales leads through their lifecycle with scheduled,
personalized outreach. Leads enter via 'nurture', due messages go out on
each 'tick' (or continuously with 'run'), and engagement signals feed the
next decision. Templates are matched to each lead semantically, and
capabilities can be advertised to and discovered from an agent directory.`,
		SilenceUsage: true,
	}
	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(nurtureCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(closeCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(discoverCmd())
	return rootCmd
}

func main() {
	cobra.OnInitialize(initEnv)
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initEnv() {
	viper.SetEnvPrefix("NURTUREMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the durable lead store (empty: in-memory)")
	rootCmd.PersistentFlags().String("template-dir", "", "directory of template files to publish at startup")
	rootCmd.PersistentFlags().String("directory-endpoint", "", "agent directory base URL (empty: in-memory)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("template-dir", rootCmd.PersistentFlags().Lookup("template-dir"))
	_ = viper.BindPFlag("directory-endpoint", rootCmd.PersistentFlags().Lookup("directory-endpoint"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	// Flags override file and environment.
	if v := viper.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := viper.GetString("template-dir"); v != "" {
		cfg.TemplateDir = v
	}
	if v := viper.GetString("directory-endpoint"); v != "" {
		cfg.DirectoryEndpoint = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// buildMesh assembles a NurtureMesh from the loaded configuration,
// picking durable or remote service implementations where configured and
// in-memory ones otherwise.
func buildMesh(ctx context.Context, cfg config.Config) (*nurturemesh.NurtureMesh, error) {
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     parseLogLevel(cfg.LogLevel),
		Format:    "text",
		Output:    os.Stderr,
		Component: "nurturemesh",
	})

	policy := nurture.Policy{
		GracePeriod:   cfg.GracePeriod,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		BackoffFactor: nurture.DefaultPolicy.BackoffFactor,
	}

	var store core.LeadStore
	if cfg.DataDir != "" {
		s, err := sqlite.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open lead store: %w", err)
		}
		store = s
	}

	index := templateindex.NewInMemoryIndex(func(o *templateindex.Options) {
		o.SimilarityFloor = cfg.SimilarityFloor
		if cfg.OpenAIAPIKey != "" {
			client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
			o.Embedder = oaiembed.NewEmbedderFromClient(&client)
		}
	})

	var dir core.DirectoryClient
	if cfg.DirectoryEndpoint != "" {
		dir = directory.NewClient(cfg.DirectoryEndpoint)
	}

	var deliverer core.Deliverer
	if cfg.WebhookURL != "" {
		deliverer = notify.NewWebhookDeliverer(cfg.WebhookURL)
	} else {
		deliverer = notify.NewLogDeliverer(logger)
	}

	var personalizer core.Personalizer
	if cfg.AnthropicAPIKey != "" {
		personalizer = anthropic.NewPersonalizer(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
		})
	}

	mesh := nurturemesh.New(func(o *nurturemesh.Options) {
		o.EngineConfig = engine.Config{
			MaxConcurrentDeliveries: cfg.MaxConcurrent,
			DeliveryTimeout:         engine.DefaultConfig.DeliveryTimeout,
			IOTimeout:               engine.DefaultConfig.IOTimeout,
		}
		o.Policy = policy
		o.LeadStore = store
		o.Scheduler = schedule.NewInMemoryScheduler(func(so *schedule.Options) {
			so.LeaseTimeout = cfg.LeaseTimeout
		})
		o.TemplateIndex = index
		o.Directory = dir
		o.Deliverer = deliverer
		o.Personalizer = personalizer
		o.Logger = logger
	})

	if cfg.TemplateDir != "" {
		tmpls, err := loadTemplates(cfg.TemplateDir)
		if err != nil {
			return nil, err
		}
		if err := mesh.PublishTemplates(ctx, tmpls); err != nil {
			return nil, fmt.Errorf("publish templates: %w", err)
		}
	}
	return mesh, nil
}

func parseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

// templateFile is the on-disk template format, one template or a list per
// file, in JSON or YAML.
type templateFile struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Subject string   `json:"subject" yaml:"subject"`
	Body    string   `json:"body" yaml:"body"`
	Channel string   `json:"channel" yaml:"channel"`
	Stages  []string `json:"stages" yaml:"stages"`
	Tags    []string `json:"tags" yaml:"tags"`
}

func (t templateFile) toTemplate() core.Template {
	stages := make([]core.Stage, len(t.Stages))
	for i, s := range t.Stages {
		stages[i] = core.Stage(s)
	}
	return core.Template{
		ID:      t.ID,
		Name:    t.Name,
		Subject: t.Subject,
		Body:    t.Body,
		Channel: t.Channel,
		Stages:  stages,
		Tags:    t.Tags,
	}
}

func loadTemplates(dir string) ([]core.Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	var out []core.Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var records []templateFile
		if ext == ".json" {
			if err = json.Unmarshal(data, &records); err != nil {
				var single templateFile
				if err = json.Unmarshal(data, &single); err == nil {
					records = []templateFile{single}
				}
			}
		} else {
			if err = yaml.Unmarshal(data, &records); err != nil {
				var single templateFile
				if err = yaml.Unmarshal(data, &single); err == nil {
					records = []templateFile{single}
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parse template file %s: %w", entry.Name(), err)
		}
		for _, rec := range records {
			out = append(out, rec.toTemplate())
		}
	}
	return out, nil
}

func parseLeads(source, format string) ([]core.Lead, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(source)) {
		case ".csv":
			format = "csv"
		default:
			format = "json"
		}
	}
	p, err := leadparse.New(leadparse.SourceType(format))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f)
}

func parseCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "parse <source-file>",
		Short: "Parse a lead source and print the normalized records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leads, err := parseLeads(args[0], format)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return leadparse.Write(os.Stdout, leads)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Email", "Company", "Stage"})
			for _, l := range leads {
				tw.AppendRow(table.Row{l.ID, l.FullName(), l.Email, l.Company, l.Stage})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "source format: csv or json (default: by extension)")
	return cmd
}

func nurtureCmd() *cobra.Command {
	var (
		format   string
		ticks    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "nurture <source-file>",
		Short: "Intake leads, schedule their next actions and tick them out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			leads, err := parseLeads(args[0], format)
			if err != nil {
				return err
			}
			mesh, err := buildMesh(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			res, err := mesh.Nurture(cmd.Context(), leads)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			// The scheduler is process-local, so due actions must drain
			// before this process exits.
			for i := 0; i < ticks; i++ {
				if i > 0 {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(interval):
					}
				}
				tickRes, err := mesh.Tick(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(tickRes); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "source format: csv or json (default: by extension)")
	cmd.Flags().IntVar(&ticks, "ticks", 1, "ticks to run after intake (0: intake only)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between ticks")
	return cmd
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Process all currently due actions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				res, err := mesh.Tick(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Tick continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mesh, err := buildMesh(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			err = mesh.Run(cmd.Context(), cfg.TickInterval)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func signalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signal <lead-id> <kind>",
		Short: "Record an engagement signal (email_open, email_reply, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				return mesh.RecordSignal(ctx, args[0], core.HistoryEventKind(args[1]), nil)
			})
		},
	}
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <lead-id>",
		Short: "End a lead's lifecycle and send the close-out message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				return mesh.CloseLead(ctx, args[0])
			})
		},
	}
}

func leadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lead <lead-id>",
		Short: "Show a lead's current record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				lead, err := mesh.Lead(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(lead)
			})
		},
	}
}

func registerCmd() *cobra.Command {
	var reg core.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Advertise a capability to the agent directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				rec, err := mesh.RegisterCapability(ctx, reg)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	cmd.Flags().StringVar(&reg.Capability, "capability", "", "capability name")
	cmd.Flags().StringVar(&reg.Name, "name", "", "agent display name")
	cmd.Flags().StringVar(&reg.Address, "address", "", "agent contact address")
	cmd.Flags().StringVar(&reg.Description, "description", "", "human-readable description")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <capability>",
		Short: "List agents advertising a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMesh(cmd, func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error {
				records, err := mesh.DiscoverAgents(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Capability", "Name", "Address", "Fresh At"})
				for _, r := range records {
					tw.AppendRow(table.Row{r.Capability, r.Name, r.Address, r.FreshAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func withMesh(cmd *cobra.Command, fn func(ctx context.Context, mesh *nurturemesh.NurtureMesh) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mesh, err := buildMesh(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), mesh)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
