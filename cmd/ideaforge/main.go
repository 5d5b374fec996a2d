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
	"go.uber.org/zap"

	"ideaforge/internal/app"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/migrate"
	"ideaforge/internal/notify"
	"ideaforge/internal/repo"
	"ideaforge/internal/server"
	"ideaforge/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "IdeaForge CLI",
	Long: `IdeaForge runs the progression and delegation engine for a community
idea platform. Ideas climb a fixed lifecycle (idea -> pre-draft -> draft ->
commit -> in-progress -> test -> finish) driven by like ratios, and ideas
whose owners go quiet are offered to their top contributor.`,
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
	viper.SetEnvPrefix("IDEAFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(likeCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(collabCmd())
	rootCmd.AddCommand(delegationCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func actingUser() (string, error) {
	userID := viper.GetString("user-id")
	if userID == "" {
		return "", fmt.Errorf("--user-id required")
	}
	return userID, nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var wallet, nickname string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wallet == "" {
				return fmt.Errorf("--wallet required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, wallet, nickname)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	cmd.Flags().StringVar(&nickname, "nickname", "", "display name")
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
				tw.AppendHeader(table.Row{"ID", "Wallet", "Nickname", "Created"})
				for _, u := range users {
					nickname := ""
					if u.Nickname != nil {
						nickname = *u.Nickname
					}
					tw.AppendRow(table.Row{u.ID, u.WalletAddress, nickname, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func ideaCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "idea", Short: "Manage ideas"}
	cmd.AddCommand(ideaCreateCmd())
	cmd.AddCommand(ideaListCmd())
	cmd.AddCommand(ideaShowCmd())
	cmd.AddCommand(ideaArchiveCmd())
	cmd.AddCommand(ideaAdvanceCmd())
	cmd.AddCommand(ideaHistoryCmd())
	cmd.AddCommand(ideaDelegateCmd())
	return cmd
}

func ideaCreateCmd() *cobra.Command {
	var opts engine.IdeaCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit an idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			opts.OwnerUserID = userID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				idea, err := e.CreateIdea(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(idea)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "idea title")
	cmd.Flags().StringVar(&opts.Target, "target", "", "who it is for")
	cmd.Flags().StringVar(&opts.Why, "why", "", "why it matters")
	cmd.Flags().StringVar(&opts.What, "what", "", "what it is")
	cmd.Flags().StringVar(&opts.How, "how", "", "how it works")
	cmd.Flags().StringVar(&opts.Impact, "impact", "", "expected impact")
	return cmd
}

func ideaListCmd() *cobra.Command {
	var f repo.IdeaFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ideas, err := r.ListIdeas(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ideas)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Likes", "Comments", "Owner"})
				for _, i := range ideas {
					owner := ""
					if i.OwnerUserID != nil {
						owner = *i.OwnerUserID
					}
					tw.AppendRow(table.Row{i.ID, i.Title, i.Status, i.LikesCount, i.CommentsCount, owner})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.OwnerUserID, "owner", "", "owner filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func ideaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <idea-id>",
		Short: "Show an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				idea, err := r.GetIdea(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(idea)
			})
		},
	}
}

func ideaArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <idea-id>",
		Short: "Archive an idea (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				idea, err := e.ArchiveIdea(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(idea)
			})
		},
	}
}

func ideaAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <idea-id>",
		Short: "Move an idea one stage forward (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				idea, err := e.AdvanceIdea(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(idea)
			})
		},
	}
}

func ideaHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <idea-id>",
		Short: "Show progression history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				hist, err := e.History.List(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(hist)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"From", "To", "Trigger", "At"})
				for _, p := range hist {
					from := ""
					if p.FromStatus != nil {
						from = string(*p.FromStatus)
					}
					tw.AppendRow(table.Row{from, p.ToStatus, p.TriggerType, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func ideaDelegateCmd() *cobra.Command {
	var toUser string
	cmd := &cobra.Command{
		Use:   "delegate <idea-id>",
		Short: "Offer ownership to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			if toUser == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Delegate(ctx, args[0], userID, toUser)
				if err != nil {
					return err
				}
				if d == nil {
					return fmt.Errorf("idea already has a pending delegation")
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&toUser, "to", "", "user to offer ownership to")
	return cmd
}

func likeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "like <idea-id>",
		Short: "Toggle a like on an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				idea, liked, err := e.ToggleLike(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"idea": idea, "liked": liked})
			})
		},
	}
}

func commentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Comment on ideas"}
	var content string
	add := &cobra.Command{
		Use:   "add <idea-id>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, args[0], userID, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	add.Flags().StringVar(&content, "content", "", "comment text")
	list := &cobra.Command{
		Use:   "list <idea-id>",
		Short: "List comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				comments, err := r.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(comments)
			})
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}

func collabCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "collab", Short: "Collaboration requests"}
	var role, message string
	request := &cobra.Command{
		Use:   "request <idea-id>",
		Short: "Ask to collaborate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RequestCollaboration(ctx, args[0], userID, role, message)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	request.Flags().StringVar(&role, "role", "contributor", "requested role")
	request.Flags().StringVar(&message, "message", "", "message to the owner")
	resolve := func(use, short string, accept bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				userID, err := actingUser()
				if err != nil {
					return err
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					c, err := e.ResolveCollaboration(ctx, args[0], userID, accept)
					if err != nil {
						return err
					}
					return printJSONOrTable(c)
				})
			},
		}
	}
	cmd.AddCommand(request,
		resolve("accept <collaboration-id>", "Accept a collaboration request", true),
		resolve("decline <collaboration-id>", "Decline a collaboration request", false))
	return cmd
}

func delegationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "delegation", Short: "Ownership delegations"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List delegations addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ds, err := r.ListDelegations(ctx, repo.DelegationFilters{ToUserID: userID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ds)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Idea", "Reason", "Status", "Offered"})
				for _, d := range ds {
					tw.AppendRow(table.Row{d.ID, d.IdeaID, d.Reason, d.Status, d.DelegatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	accept := &cobra.Command{
		Use:   "accept <delegation-id>",
		Short: "Accept an ownership offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AcceptDelegation(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	decline := &cobra.Command{
		Use:   "decline <delegation-id>",
		Short: "Decline an ownership offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.DeclineDelegation(ctx, args[0], userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.AddCommand(list, accept, decline)
	return cmd
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Notification inbox"}
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ns, err := r.ListNotifications(ctx, repo.NotificationFilters{
					UserID: userID, UnreadOnly: unread, Limit: limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ns)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "At"})
				for _, n := range ns {
					read := n.ReadAt != nil
					tw.AppendRow(table.Row{n.ID, n.Type, n.Title, read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "unread only")
	list.Flags().IntVar(&limit, "limit", 0, "max results")
	read := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark one notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.MarkNotificationRead(ctx, args[0], userID)
			})
		},
	}
	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				n, err := r.MarkAllNotificationsRead(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Printf("marked %d notifications read\n", n)
				return nil
			})
		},
	}
	cmd.AddCommand(list, read, readAll)
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one promotion and delegation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RunSweep(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the sweep loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				log, err := zap.NewProduction()
				if err != nil {
					return err
				}
				defer log.Sync()
				if redisURL := viper.GetString("redis-url"); redisURL != "" {
					bus, err := notify.NewRedisBus(redisURL, viper.GetString("redis-channel"))
					if err != nil {
						return err
					}
					defer bus.Close()
					e.Notify.Bus = bus
					e.Notify.Log = log
				}
				w := worker.New(e, log)
				err = w.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Lifecycle distribution and progression rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.ProgressionStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, s := range []domain.Status{
					domain.StatusIdea, domain.StatusPreDraft, domain.StatusDraft, domain.StatusCommit,
					domain.StatusInProgress, domain.StatusTest, domain.StatusFinish, domain.StatusArchive,
				} {
					tw.AppendRow(table.Row{s, stats.ByStatus[s]})
				}
				tw.AppendFooter(table.Row{"progression rate", fmt.Sprintf("%.1f%%", stats.ProgressionRate)})
				tw.Render()
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Engine configuration"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	}
	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML rule table into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Path(viper.GetString("workspace"))
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, file, r)
				if err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "YAML config path (defaults to ideaforge.yml in the workspace)")
	cmd.AddCommand(show, importCmd)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw, key, err := e.MintAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actingUser()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	cmd.AddCommand(create, list, del)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("IDEAFORGE_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("IDEAFORGE_JWT_SECRET is required for bearer auth")
				}
				if redisURL := viper.GetString("redis-url"); redisURL != "" {
					bus, err := notify.NewRedisBus(redisURL, viper.GetString("redis-channel"))
					if err != nil {
						return err
					}
					defer bus.Close()
					e.Notify.Bus = bus
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving IdeaForge API on http://%s%s (db %s, OpenAPI at %s/openapi.json)\n",
				addr, basePath, db.Path(viper.GetString("workspace")), basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
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
