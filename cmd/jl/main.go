package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"jobline/internal/app"
	"jobline/internal/config"
	"jobline/internal/credential"
	"jobline/internal/db"
	"jobline/internal/domain"
	"jobline/internal/engine"
	"jobline/internal/events"
	"jobline/internal/projection"
	"jobline/internal/repo"
	"jobline/internal/server"
	joblinesdk "jobline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "jl",
	Short: "Jobline CLI",
	Long: `Jobline lets an owner assign paid jobs to workers and follow their completion live.
- Workers: people with a login who receive jobs.
- Jobs: a title, a description and a reward, assigned to one worker; pending until that worker completes it.
- Notifications: the owner's feed, one entry per completed job, unread until acknowledged.
- Views: live projections that refresh whenever a job, worker or notification changes (jl watch).
- Event log: the audit trail of everything that happened, view it with 'jl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JOBLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner-email", "", "owner email (overrides jobline.yml)")
	rootCmd.PersistentFlags().String("owner-password", "", "owner password (overrides jobline.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "owner-email", "owner-password", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(remoteCmd())
}

func initCmd() *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create jobline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if strings.TrimSpace(appID) == "" {
				return fmt.Errorf("--app-id required")
			}
			if _, err := config.FromYAML([]byte(config.GenerateDefault(appID))); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(appID)), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Initialized %s (app %s, database %s)\n", path, a.Config.App.ID, db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", app.DefaultAppID, "application id used to namespace collections")
	return cmd
}

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "worker", Short: "Manage workers"}
	cmd.AddCommand(workerAddCmd())
	cmd.AddCommand(workerListCmd())
	return cmd
}

func workerAddCmd() *cobra.Command {
	var opts engine.WorkerCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.AddWorker(ctx, domain.OwnerViewer(), opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w.Public())
				}
				fmt.Printf("Added worker %s (%s)\n", w.ID, w.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "login email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "login password")
	return cmd
}

func workerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				workers, err := e.ListWorkers(ctx, domain.OwnerViewer())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := make([]domain.Worker, 0, len(workers))
					for _, w := range workers {
						out = append(out, w.Public())
					}
					return printJSON(out)
				}
				renderWorkers(workers)
				return nil
			})
		},
	}
}

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "job", Short: "Manage jobs"}
	cmd.AddCommand(jobCreateCmd())
	cmd.AddCommand(jobListCmd())
	cmd.AddCommand(jobCompleteCmd())
	return cmd
}

func jobCreateCmd() *cobra.Command {
	var title, description, reward, assignee string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Assign a paid job to a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := engine.ParseReward(reward)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				job, err := e.CreateJob(ctx, domain.OwnerViewer(), engine.JobCreateOptions{
					Title:       title,
					Description: description,
					Reward:      amount,
					AssigneeID:  assignee,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(job)
				}
				fmt.Printf("Created job %s for %s\n", job.ID, job.AssignedToName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "job description")
	cmd.Flags().StringVar(&reward, "reward", "", "reward amount")
	cmd.Flags().StringVar(&assignee, "assignee", "", "worker id")
	return cmd
}

func jobListCmd() *cobra.Command {
	var login credentialsFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs (all as owner, own pending jobs with --email/--password)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				viewer, err := login.viewer(ctx, a)
				if err != nil {
					return err
				}
				jobs, err := a.Engine.ListJobs(ctx, viewer)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				renderJobs(jobs)
				return nil
			})
		},
	}
	login.bind(cmd)
	return cmd
}

func jobCompleteCmd() *cobra.Command {
	var login credentialsFlags
	cmd := &cobra.Command{
		Use:   "complete <job-id>",
		Short: "Complete an assigned job as the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if login.email == "" {
				return fmt.Errorf("--email and --password required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				viewer, err := login.viewer(ctx, a)
				if err != nil {
					return err
				}
				job, note, err := a.Engine.CompleteJob(ctx, viewer, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"job": job, "notification": note})
				}
				fmt.Println(note.Message)
				return nil
			})
		},
	}
	login.bind(cmd)
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Owner notification feed"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unread notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				notes, err := e.ListNotifications(ctx, domain.OwnerViewer())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				renderNotifications(notes)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ack <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AcknowledgeNotification(ctx, domain.OwnerViewer(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(n)
				}
				fmt.Printf("Acknowledged %s\n", n.ID)
				return nil
			})
		},
	})
	return cmd
}

func loginCmd() *cobra.Command {
	var login credentialsFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the resolved role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if login.email == "" {
				return fmt.Errorf("--email and --password required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				viewer, err := login.viewer(ctx, a)
				if err != nil {
					return err
				}
				out := map[string]any{
					"role":        viewer.Role,
					"actor_id":    viewer.ActorID(),
					"permissions": a.Engine.Policy.Permissions(viewer.Role),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Logged in as %s (%s)\n", viewer.ActorID(), viewer.Role)
				return nil
			})
		},
	}
	login.bind(cmd)
	return cmd
}

func watchCmd() *cobra.Command {
	var login credentialsFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live view until interrupted",
		Long:  "Shows the owner view, or a worker's pending jobs with --email/--password, and redraws it on every change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				viewer, err := login.viewer(ctx, a)
				if err != nil {
					return err
				}
				s := a.Sessions.Start(viewer, 0)
				a.Engine.RecordSession(ctx, events.SessionStarted, s.ID, viewer)
				defer func() {
					if a.Sessions.End(s.ID) {
						a.Engine.RecordSession(ctx, events.SessionEnded, s.ID, viewer)
					}
				}()
				proj, err := projection.Open(ctx, a.Store, viewer, a.Logger)
				if err != nil {
					return err
				}
				if !s.Track(proj) {
					return nil
				}
				for {
					select {
					case <-ctx.Done():
						return nil
					case v, ok := <-proj.Updates():
						if !ok {
							return nil
						}
						if viper.GetBool("json") {
							for i := range v.Workers {
								v.Workers[i] = v.Workers[i].Public()
							}
							if v.Viewer.Worker != nil {
								w := v.Viewer.Worker.Public()
								v.Viewer.Worker = &w
							}
							if err := printJSON(v); err != nil {
								return err
							}
							continue
						}
						renderView(v)
					}
				}
			})
		},
	}
	login.bind(cmd)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit trail: workers added, jobs created and completed, notifications, sessions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, domain.OwnerViewer(), n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret: viper.GetString("jwt-secret"),
					TokenTTL:  a.Config.TokenTTL(),
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("JOBLINE_JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Resolver: a.Resolver,
					Sessions: a.Sessions,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.Logger.Info("serving jobline api", "addr", addr, "base_path", basePath)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					// Open streams only end with their sessions.
					a.Sessions.CloseAll()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				g.Go(func() error { return a.Sessions.Run(gctx, time.Minute, a.Logger) })
				if d := server.NewWebhookDispatcher(a.Engine.Repo, a.Config, a.Logger); d != nil {
					g.Go(func() error { return d.Run(gctx) })
				}
				fmt.Printf("Serving Jobline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	_ = viper.BindEnv("jwt-secret", "JOBLINE_JWT_SECRET")
	return cmd
}

// --- helpers ---

type credentialsFlags struct {
	email    string
	password string
}

func (c *credentialsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "log in with this email")
	cmd.Flags().StringVar(&c.password, "password", "", "password for --email")
}

// viewer resolves the login, or the owner when no email is given.
func (c credentialsFlags) viewer(ctx context.Context, a *app.App) (domain.Viewer, error) {
	if c.email == "" {
		return domain.OwnerViewer(), nil
	}
	return a.Resolver.Login(ctx, c.email, c.password)
}

func appOptions() app.Options {
	return app.Options{
		Workspace:     viper.GetString("workspace"),
		OwnerEmail:    viper.GetString("owner-email"),
		OwnerPassword: viper.GetString("owner-password"),
		LogLevel:      viper.GetString("log-level"),
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, appOptions())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderWorkers(workers []domain.Worker) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Email"})
	for _, w := range workers {
		tw.AppendRow(table.Row{w.ID, w.Name, w.Email})
	}
	tw.Render()
}

func renderJobs(jobs []domain.Job) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Reward", "Assignee", "Status", "Created"})
	for _, j := range jobs {
		tw.AppendRow(table.Row{j.ID, j.Title, fmt.Sprintf("%.2f", j.Reward), j.AssignedToName, j.Status, j.CreatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func renderNotifications(notes []domain.Notification) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Message", "Created"})
	for _, n := range notes {
		tw.AppendRow(table.Row{n.ID, n.Message, n.CreatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func renderView(v projection.View) {
	fmt.Printf("\n== %s view (seq %d) ==\n", v.Viewer.Role, v.Seq)
	if v.Viewer.IsOwner() {
		renderWorkers(v.Workers)
	}
	renderJobs(v.Jobs)
	if v.Viewer.IsOwner() {
		fmt.Printf("Unread notifications: %d\n", v.UnreadCount())
		renderNotifications(v.Notifications)
	}
}

func remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running jl serve",
	}
	cmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "server URL")
	_ = viper.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	cmd.AddCommand(remoteLoginCmd())
	cmd.AddCommand(remoteLogoutCmd())
	cmd.AddCommand(remoteJobsCmd())
	cmd.AddCommand(remoteCompleteCmd())
	cmd.AddCommand(remoteNotificationsCmd())
	cmd.AddCommand(remoteAckCmd())
	cmd.AddCommand(remoteWatchCmd())
	return cmd
}

func remoteLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := credential.Open("")
			if err != nil {
				return err
			}
			serverURL := viper.GetString("server")
			c := joblinesdk.New(serverURL)
			s, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := tokens.Set(serverURL, s.Token); err != nil {
				return err
			}
			fmt.Printf("Logged in to %s as %s (%s)\n", serverURL, s.Viewer.ActorID, s.Viewer.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	return cmd
}

func remoteLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the remote session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, tokens credential.Tokens) error {
				if err := c.Logout(cmd.Context()); err != nil && !joblinesdk.IsStatus(err, http.StatusUnauthorized) {
					return err
				}
				return tokens.Delete(c.BaseURL)
			})
		},
	}
}

func remoteJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List visible jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, _ credential.Tokens) error {
				jobs, err := c.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Reward", "Assignee", "Status"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Title, fmt.Sprintf("%.2f", j.Reward), j.AssignedToName, j.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func remoteCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <job-id>",
		Short: "Complete an assigned job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, _ credential.Tokens) error {
				res, err := c.CompleteJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Notification.Message)
				return nil
			})
		},
	}
}

func remoteNotificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "List unread notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, _ credential.Tokens) error {
				notes, err := c.Notifications(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Message", "Created"})
				for _, n := range notes {
					tw.AppendRow(table.Row{n.ID, n.Message, n.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func remoteAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, _ credential.Tokens) error {
				n, err := c.AckNotification(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Acknowledged %s\n", n.ID)
				return nil
			})
		},
	}
}

func remoteWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the remote live view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(func(c *joblinesdk.Client, _ credential.Tokens) error {
				return c.Stream(cmd.Context(), func(v joblinesdk.View) error {
					if viper.GetBool("json") {
						return printJSON(v)
					}
					fmt.Printf("\n== %s view (seq %d): %d jobs, %d unread ==\n", v.Viewer.Role, v.Seq, len(v.Jobs), v.UnreadCount)
					for _, j := range v.Jobs {
						fmt.Printf("  %s  %-30s %8.2f  %s  %s\n", j.ID, j.Title, j.Reward, j.AssignedToName, j.Status)
					}
					return nil
				})
			})
		},
	}
}

func withRemote(fn func(*joblinesdk.Client, credential.Tokens) error) error {
	tokens, err := credential.Open("")
	if err != nil {
		return err
	}
	serverURL := viper.GetString("server")
	token, err := tokens.Get(serverURL)
	if err != nil {
		return err
	}
	c := joblinesdk.New(serverURL)
	c.BearerToken = token
	return fn(c, tokens)
}
