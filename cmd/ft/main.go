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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldtasker/internal/config"
	"fieldtasker/internal/db"
	"fieldtasker/internal/domain"
	"fieldtasker/internal/engine"
	"fieldtasker/internal/log"
	"fieldtasker/internal/migrate"
	"fieldtasker/internal/repo"
	"fieldtasker/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ft",
	Short: "FieldTasker CLI",
	Long: `FieldTasker coordinates field mapping campaigns.
A project's area is split into tasks; mappers lock a task, survey it, and mark
it MAPPED; validators lock it again and mark it VALIDATED or send it back.
Every change is recorded in an append-only history that feeds the progress
reports.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		initLogging(workspace)
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("FIELDTASKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initLogging(workspace string) {
	cfg, err := config.LoadOptional(workspace)
	level := log.InfoLevel
	jsonOut := false
	if err == nil && cfg != nil {
		level = log.Level(cfg.Logging.Level)
		jsonOut = cfg.Logging.JSON
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonOut, Output: os.Stderr})
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(serveCmd())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.SchemaVersion(conn)
			if err != nil {
				return err
			}
			fmt.Printf("database up to date (schema version %d)\n", v)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage fieldtasker.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organisations"}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgListCmd())
	return org
}

func orgCreateCmd() *cobra.Command {
	var name, slug, desc, url string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrganisation(ctx, domain.Organisation{
					Name: name, Slug: slug, Description: desc, URL: url,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organisation name")
	cmd.Flags().StringVar(&slug, "slug", "", "url slug")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&url, "url", "", "website url")
	return cmd
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organisations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orgs, err := r.ListOrganisations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Slug"})
				for _, o := range orgs {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Slug})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectDashboardCmd())
	prj.AddCommand(projectActivityCmd())
	prj.AddCommand(projectContributorsCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var orgID, name, desc, outlineFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || name == "" {
				return fmt.Errorf("--org and --name required")
			}
			outline := ""
			if outlineFile != "" {
				data, err := os.ReadFile(outlineFile)
				if err != nil {
					return err
				}
				outline = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, domain.Project{
					OrgID: orgID, Name: name, Description: desc, OutlineGeoJSON: outline,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organisation id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&outlineFile, "outline", "", "boundary geojson file")
	return cmd
}

func projectListCmd() *cobra.Command {
	var orgID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				projects, err := r.ListProjects(ctx, repo.ProjectFilters{OrgID: orgID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "filter by organisation")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func projectDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <project-id>",
		Short: "Project summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Project: %s (%s)\n", d.ProjectID, d.OrgName)
				fmt.Printf("Tasks: %d, contributors: %d\n", d.TotalTasks, d.TotalContributors)
				if d.LastActive != "" {
					fmt.Printf("Last active: %s\n", d.LastActive)
				}
				for status, n := range d.TasksByStatus {
					fmt.Printf("  %s: %d\n", status, n)
				}
				return nil
			})
		},
	}
}

func projectActivityCmd() *cobra.Command {
	var start string
	cmd := &cobra.Command{
		Use:   "activity <project-id>",
		Short: "Cumulative daily mapped/validated counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				days, err := e.ProjectActivity(ctx, args[0], start)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Mapped", "Validated"})
				for _, d := range days {
					tw.AppendRow(table.Row{d.Date, d.CumulativeMapped, d.CumulativeValidated})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "series start date (YYYY-MM-DD), defaults to project creation")
	return cmd
}

func projectContributorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contributors <project-id>",
		Short: "Per-user contribution counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				contributors, err := e.Contributors(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(contributors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Contributions"})
				for _, c := range contributors {
					tw.AppendRow(table.Row{c.Username, c.Contributions})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long: `Tasks flow READY -> LOCKED_FOR_MAPPING -> MAPPED -> LOCKED_FOR_VALIDATION
-> VALIDATED, with INVALIDATED, BAD, and SPLIT as the exits. Only the lock
holder may move a locked task; managers can use --override-lock.`,
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskCommentCmd())
	task.AddCommand(taskHistoryCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var projectID, outlinesFile string
	var count int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tasks from split outlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			var outlines []string
			if outlinesFile != "" {
				data, err := os.ReadFile(outlinesFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &outlines); err != nil {
					return fmt.Errorf("outlines file must be a JSON array of geometries: %w", err)
				}
			} else {
				for i := 0; i < count; i++ {
					outlines = append(outlines, "")
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.CreateTasks(ctx, projectID, outlines)
				if err != nil {
					return err
				}
				fmt.Printf("created %d tasks\n", len(tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&outlinesFile, "outlines", "", "JSON file with an array of task geometries")
	cmd.Flags().IntVar(&count, "count", 0, "number of empty tasks when no outlines file is given")
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, repo.TaskFilters{ProjectID: projectID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "#", "Status", "Locked by", "Mapped by", "Validated by"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Index, t.Status, deref(t.LockedBy), deref(t.MappedBy), deref(t.ValidatedBy)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	var status string
	var overrideLock bool
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Apply a lifecycle transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetString("user")
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			if status == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ApplyTransition(ctx, engine.TransitionOptions{
					TaskID:       args[0],
					UserID:       userID,
					NewStatus:    domain.TaskStatus(status),
					OverrideLock: overrideLock,
				})
				if err != nil {
					return err
				}
				fmt.Printf("task %d is now %s\n", t.Index, t.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "new status")
	cmd.Flags().BoolVar(&overrideLock, "override-lock", false, "force past another user's lock")
	return cmd
}

func taskCommentCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetString("user")
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			if text == "" {
				return fmt.Errorf("--text required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				if _, err := e.RecordComment(ctx, t.ProjectID, t.ID, userID, text); err != nil {
					return err
				}
				fmt.Println("comment recorded")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	return cmd
}

func taskHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Task history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListHistory(ctx, repo.HistoryFilters{TaskID: args[0], Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Action", "User", "Text"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ActionDate, e.Action, e.Username, e.ActionText})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var username, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.RegisterUser(ctx, username, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&role, "role", "mapper", "mapper, validator, project_manager or admin")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Username, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage background jobs"}
	job.AddCommand(jobListCmd())
	job.AddCommand(jobSetStatusCmd())
	return job
}

func jobListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				jobs, err := r.ListBackgroundJobs(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(jobs)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func jobSetStatusCmd() *cobra.Command {
	var status, message string
	cmd := &cobra.Command{
		Use:   "set-status <job-id>",
		Short: "Update job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.SetJobStatus(ctx, args[0], status, message)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "PENDING, RECEIVED, RUNNING, SUCCESS or FAILED")
	cmd.Flags().StringVar(&message, "message", "", "status message")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
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
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			log.Init(log.Config{Level: log.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSON, Output: os.Stderr})
			secret := os.Getenv("FIELDTASKER_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("FIELDTASKER_JWT_SECRET or auth.jwt_secret is required")
			}
			if addr == "" {
				addr = cfg.Addr()
			}
			e := engine.New(conn)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret: secret,
					TokenTTL:  time.Duration(cfg.TokenTTLMinutes()) * time.Minute,
				},
				Webhooks: cfg.Webhooks,
			})
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
			logger := log.WithComponent("server")
			logger.Info().Str("addr", addr).Msg("serving FieldTasker API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
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

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
