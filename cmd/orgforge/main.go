package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orgforge/internal/app"
	"orgforge/internal/config"
	"orgforge/internal/db"
	"orgforge/internal/domain"
	"orgforge/internal/engine"
	"orgforge/internal/migrate"
	"orgforge/internal/policy"
	"orgforge/internal/recommend"
	"orgforge/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "orgforge",
	Short: "Orgforge CLI",
	Long: `Orgforge walks a company through designing its HR operating system.
Core concepts:
- Workspace: the .orgforge directory holding the database; per-project config lives in the DB and is imported explicitly.
- Company: the unit being designed; an HR manager creates it and invites the CEO and consultants.
- Project: the company's single design cycle, made of six steps.
- Steps: diagnosis -> organization -> performance -> compensation -> hr_policy_os form the chain; ceo_philosophy runs in parallel and belongs to the CEO.
- Review: the HR manager submits each step, the CEO verifies it or requests a revision.
- Recommendations: weighted rules rank structure, performance, and compensation options from upstream answers.
- Event log: diary of changes, view with 'orgforge log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("ORGFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("role", "hr_manager", "acting role (hr_manager, ceo, consultant, admin)")
	rootCmd.PersistentFlags().String("company", "", "company id (defaults to the workspace's single company)")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides --company)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("company", rootCmd.PersistentFlags().Lookup("company"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func actor() policy.Actor {
	return policy.Actor{
		UserID: viper.GetString("user-id"),
		Role:   domain.Role(viper.GetString("role")),
	}
}

func companyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "company", Short: "Manage companies"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a company (you become its HR manager)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.CreateCompany(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List visible companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Companies(ctx, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "members",
		Short: "List company members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				items, err := e.Memberships(ctx, c.ID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return cmd
}

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invite", Short: "Manage invitations"}

	var email, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Invite a CEO or consultant into the company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				inv, err := e.InviteMember(ctx, c.ID, email, domain.Role(role), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "invitee email")
	create.Flags().StringVar(&role, "role", "ceo", "invited role (ceo or consultant)")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the company's invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				items, err := e.Invitations(ctx, c.ID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})

	var acceptEmail string
	accept := &cobra.Command{
		Use:   "accept TOKEN",
		Short: "Redeem an invitation token as the acting user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				inv, err := e.AcceptInvitation(ctx, args[0], viper.GetString("user-id"), acceptEmail)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	accept.Flags().StringVar(&acceptEmail, "email", "", "email to record for the new user")
	cmd.AddCommand(accept)
	return cmd
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage the company's design cycle"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Open the design cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				p, err := e.CreateProject(ctx, c.ID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Project detail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				out, err := e.Project(ctx, p.ID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "lock",
		Short: "Freeze a fully approved cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				out, err := e.LockProject(ctx, p.ID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete the project and start over",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				if err := e.DeleteProject(ctx, p.ID, actor()); err != nil {
					return err
				}
				fmt.Println("deleted", p.ID)
				return nil
			})
		},
	})

	var file string
	importCfg := &cobra.Command{
		Use:   "config-import",
		Short: "Import project configuration from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				if err := e.ImportConfig(ctx, p.ID, actor(), cfg); err != nil {
					return err
				}
				fmt.Println("config imported for", p.ID)
				return nil
			})
		},
	}
	importCfg.Flags().StringVarP(&file, "file", "f", "", "YAML config file")
	_ = importCfg.MarkFlagRequired("file")
	cmd.AddCommand(importCfg)

	cmd.AddCommand(&cobra.Command{
		Use:   "config-show",
		Short: "Show the stored project configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				cfg, err := e.Repo.GetProjectConfig(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	})
	return cmd
}

func stepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Work on design steps",
		Long:  "Steps are edited as key=value answers (or raw JSON via --data), submitted for review, then verified or sent back by the CEO.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show STEP",
		Short: "Step detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				rec, err := e.Step(ctx, p.ID, domain.StepKey(args[0]), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	var data string
	update := &cobra.Command{
		Use:   "update STEP [key=value ...]",
		Short: "Start or update a step with answers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(data, args[1:])
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				rec, err := e.StartOrUpdate(ctx, p.ID, domain.StepKey(args[0]), actor(), payload)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	update.Flags().StringVar(&data, "data", "", "raw JSON payload (overrides key=value args)")
	cmd.AddCommand(update)

	action := func(use, short string, call func(*engine.Engine, context.Context, string, domain.StepKey) (domain.StepRecord, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " STEP",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
					rec, err := call(e, ctx, p.ID, domain.StepKey(args[0]))
					if err != nil {
						return err
					}
					return printJSONOrTable(rec)
				})
			},
		}
	}
	cmd.AddCommand(action("submit", "Submit a step for review", func(e *engine.Engine, ctx context.Context, id string, s domain.StepKey) (domain.StepRecord, error) {
		return e.Submit(ctx, id, s, actor())
	}))
	cmd.AddCommand(action("verify", "Approve a submitted step", func(e *engine.Engine, ctx context.Context, id string, s domain.StepKey) (domain.StepRecord, error) {
		return e.Verify(ctx, id, s, actor())
	}))
	cmd.AddCommand(action("revise", "Send a submitted step back for rework", func(e *engine.Engine, ctx context.Context, id string, s domain.StepKey) (domain.StepRecord, error) {
		return e.RequestRevision(ctx, id, s, actor())
	}))
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Project progress with per-step allowed operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				prog, err := e.Progress(ctx, p.ID, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(prog)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(fmt.Sprintf("project %s (%s) %d/%d", prog.ProjectID, prog.Status, prog.Done, prog.Total))
				tw.AppendHeader(table.Row{"Step", "Status", "Unlocked", "Your operations"})
				for _, sp := range prog.Steps {
					ops := make([]string, 0, len(sp.Operations))
					for _, op := range sp.Operations {
						ops = append(ops, string(op))
					}
					tw.AppendRow(table.Row{sp.Step, sp.Status, sp.Unlocked, strings.Join(ops, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func recommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Ranked structure, performance and compensation options",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, p domain.HrProject) error {
				set, err := e.Recommendations(ctx, p.ID, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(set)
				}
				for _, section := range []struct {
					title string
					recs  []recommend.Recommendation
				}{
					{"Organization structures", set.Structures},
					{"Performance methods", set.PerformanceMethods},
					{"Compensation structures", set.CompensationStructures},
				} {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.SetTitle(section.title)
					tw.AppendHeader(table.Row{"Option", "Weight", "Reasons"})
					for _, r := range section.recs {
						tw.AppendRow(table.Row{r.Option, r.Weight, strings.Join(r.Reasons, "; ")})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	var evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				companyID := viper.GetString("company")
				if companyID == "" {
					if c, err := app.ResolveCompany(ctx, e.Repo, ""); err == nil {
						companyID = c.ID
					}
				}
				items, err := e.EventLog(ctx, actor(), limit, companyID, evtType, "", "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "max events")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.AddCommand(tail)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				plaintext, key, err := e.CreateAPIKey(ctx, viper.GetString("user-id"), name)
				if err != nil {
					return err
				}
				fmt.Println("id: ", key.ID)
				fmt.Println("key:", plaintext)
				fmt.Println("store the key now; it is not shown again")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the acting user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.APIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, viper.GetString("user-id"), args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("ORGFORGE_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("ORGFORGE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Orgforge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8484", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept X-User-Id without credentials (dev only)")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withProject(ctx context.Context, fn func(context.Context, *engine.Engine, domain.HrProject) error) error {
	return withEngine(ctx, func(ctx context.Context, e *engine.Engine) error {
		p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"), viper.GetString("company"))
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func parsePayload(data string, pairs []string) (map[string]any, error) {
	payload := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("invalid --data JSON: %w", err)
		}
		return payload, nil
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("answers must be key=value, got %q", pair)
		}
		payload[key] = value
	}
	return payload, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
