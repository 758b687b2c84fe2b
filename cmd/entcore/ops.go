package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/dgu123/entcore/internal/search"
	"github.com/dgu123/entcore/internal/util"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the notification types present in the timeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSON(cmd.OutOrStdout(), rt.timeline.ListTypes(cmd.Context()))
		},
	}
}

// parseUsers reads "id" or "id:Display Name" values.
func parseUsers(values []string) []lifecycle.User {
	users := make([]lifecycle.User, 0, len(values))
	for _, v := range values {
		id, name, _ := strings.Cut(v, ":")
		if id = strings.TrimSpace(id); id != "" {
			users = append(users, lifecycle.User{ID: id, DisplayName: strings.TrimSpace(name)})
		}
	}
	return users
}

func waitReports(ctx context.Context, w io.Writer, futures map[string]*async.Future[lifecycle.Report]) error {
	reports, err := lifecycle.WaitAll(ctx, futures)
	if err != nil {
		return err
	}
	if err := printJSON(w, reports); err != nil {
		return err
	}
	for module, r := range reports {
		if !r.OK() {
			return fmt.Errorf("%s: %d item(s) failed", module, r.Failed)
		}
	}
	return nil
}

func purgeUsersCmd() *cobra.Command {
	var (
		users   []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "purge-users",
		Short: "Run the user deletion cascade of every module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed := parseUsers(users)
			if len(parsed) == 0 {
				return fmt.Errorf("--user required")
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return waitReports(ctx, cmd.OutOrStdout(), rt.dispatcher().DeleteUsers(ctx, parsed))
		},
	}
	cmd.Flags().StringSliceVarP(&users, "user", "u", nil, "user as id or id:displayName (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "time allowed for every module to finish")
	return cmd
}

func deleteGroupsCmd() *cobra.Command {
	var (
		id, name string
		members  []string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "delete-groups",
		Short: "Run the group deletion cascade of every module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			groups := []lifecycle.Group{{ID: id, DisplayName: name, Users: members}}
			return waitReports(ctx, cmd.OutOrStdout(), rt.dispatcher().DeleteGroups(ctx, groups))
		},
	}
	cmd.Flags().StringVarP(&id, "group", "g", "", "group id (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "group display name")
	cmd.Flags().StringSliceVarP(&members, "members", "m", nil, "ids of the group's former members")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "time allowed for every module to finish")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		req     lifecycle.ExportRequest
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's resources from every module into a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.ExportID == "" {
				req.ExportID = util.NewID("exp")
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results, err := lifecycle.WaitAll(ctx, rt.dispatcher().ExportResources(ctx, req))
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), map[string]any{"exportId": req.ExportID, "modules": results}); err != nil {
				return err
			}
			for module, ok := range results {
				if !ok {
					return fmt.Errorf("export failed in %s", module)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.UserID, "user", "u", "", "user id (required)")
	cmd.Flags().StringSliceVarP(&req.GroupIDs, "groups", "g", nil, "group ids of the user")
	cmd.Flags().StringVarP(&req.ExportPath, "path", "p", "", "destination directory (required)")
	cmd.Flags().StringVarP(&req.Locale, "locale", "l", "fr", "locale of the exported folder names")
	cmd.Flags().StringVar(&req.ExportID, "id", "", "export id (generated when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "time allowed for every module to finish")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		req      search.Request
		words    string
		expected int
		timeout  time.Duration
		redisURL string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Broadcast a search request on the bus and print the provider replies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := bus.NewRedis(redisURL, rootLogger())
			if err != nil {
				return err
			}
			defer b.Close()
			req.SearchWords = strings.Fields(words)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			replies, err := search.Broadcast(ctx, b, search.Address, req, expected)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), replies)
		},
	}
	cmd.Flags().StringVarP(&req.UserID, "user", "u", "", "user id (required)")
	cmd.Flags().StringSliceVarP(&req.GroupIDs, "groups", "g", nil, "group ids of the user")
	cmd.Flags().StringVarP(&words, "query", "q", "", "search words (required)")
	cmd.Flags().StringSliceVar(&req.AppFilters, "apps", nil, "restrict to these applications")
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "results per provider")
	cmd.Flags().IntVar(&req.Page, "page", 0, "page index")
	cmd.Flags().IntVar(&expected, "providers", 0, "stop after this many replies (0 waits for the timeout)")
	cmd.Flags().DurationVar(&timeout, "timeout", 6*time.Second, "time to wait for replies")
	cmd.Flags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "bus redis url")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push the PostgreSQL search catalogue to Meilisearch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.catalogue.ReindexAllFromPG(cmd.Context())
			return nil
		},
	}
}
