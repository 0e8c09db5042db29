package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/templates"
)

func newModelsCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBACKEND\tINPUT $/1M\tOUTPUT $/1M\tMAX TOKENS")
			for _, m := range aipostblog.DefaultCatalog().List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%d\n",
					m.ID, m.Name, m.Backend, m.InputPrice, m.OutputPrice, m.MaxTokens)
			}
			return tw.Flush()
		},
	}
}

func newTemplatesCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [content-type]",
		Short: "List prompt templates, optionally for one content type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := templates.Default()
			list := lib.List()
			if len(args) == 1 {
				ct := aipostblog.ContentType(args[0])
				list = lib.ByContentType(ct)
				if len(list) == 0 {
					return fmt.Errorf("%w: content type %q", aipostblog.ErrTemplateNotFound, ct)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNAME\tTONES\tLENGTHS")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\n",
					t.ID, t.ContentType, t.Name, t.Options.SupportedTones, t.Options.SupportedLengths)
			}
			return tw.Flush()
		},
	}
}

func newCostCmd(_ *app) *cobra.Command {
	var (
		model   string
		in, out int64
	)
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate the USD cost of a generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, ok := aipostblog.DefaultCatalog().Lookup(model)
			if !ok {
				return fmt.Errorf("%w: %q", aipostblog.ErrUnknownModel, model)
			}
			cost := aipostblog.EstimateCost(m, in, out)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d in + %d out = $%s\n", m.ID, in, out, cost.StringFixed(6))
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", aipostblog.TerminalModel, "catalog model id")
	cmd.Flags().Int64Var(&in, "in", 0, "input tokens")
	cmd.Flags().Int64Var(&out, "out", 0, "output tokens")
	return cmd
}

func newQuotaCmd(a *app) *cobra.Command {
	var (
		user string
		plan string
	)
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show a user's quota for the current period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tier, err := parseTier(plan)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context(), tier)
			if err != nil {
				return err
			}
			defer svc.Close()

			q, err := svc.router.Quota(cmd.Context(), user)
			if err != nil {
				return err
			}
			printQuota(cmd.OutOrStdout(), q)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id")
	cmd.Flags().StringVar(&plan, "plan", string(aipostblog.PlanFree), "plan tier (free, pro, enterprise)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		user, plan  string
		contentType string
		templateID  string
		model       string
		stream      bool
		opts        aipostblog.GenerationOptions
	)
	cmd := &cobra.Command{
		Use:   "generate <idea>",
		Short: "Generate a post from an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseTier(plan)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context(), tier)
			if err != nil {
				return err
			}
			defer svc.Close()

			req := aipostblog.GenerationRequest{
				UserID:      user,
				Input:       args[0],
				ContentType: aipostblog.ContentType(contentType),
				TemplateID:  templateID,
				Model:       model,
				Options:     opts,
			}

			var res aipostblog.GenerationResult
			if stream {
				res, err = generateStream(cmd.Context(), svc.router, req, tier, cmd.OutOrStdout())
			} else {
				res, err = svc.router.Route(cmd.Context(), req, tier)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), res.Content)
				}
			}
			if err != nil {
				return err
			}

			a.logger.Debug("generated",
				zap.String("id", res.ID),
				zap.Strings("attempts", res.Attempts),
			)
			summary := cmd.ErrOrStderr()
			fmt.Fprintf(summary, "\nmodel %s (%s), %d in + %d out tokens, $%s, finish %s\n",
				res.Model, res.Backend, res.InputTokens, res.OutputTokens, res.Cost.StringFixed(6), res.FinishReason)
			if res.Quota != nil {
				printQuota(summary, *res.Quota)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&user, "user", "u", "", "user id; empty disables quota accounting")
	f.StringVar(&plan, "plan", string(aipostblog.PlanFree), "plan tier (free, pro, enterprise)")
	f.StringVarP(&contentType, "type", "t", string(aipostblog.ContentTweet), "content type (tweet, wechat_article, xiaohongshu, linkedin)")
	f.StringVar(&templateID, "template", "", "template id; empty selects the content type's default")
	f.StringVarP(&model, "model", "m", "", "catalog model id; empty lets the plan choose")
	f.StringVar(&opts.Tone, "tone", "", "tone")
	f.StringVar(&opts.Length, "length", "", "length (short, medium, long)")
	f.BoolVar(&opts.IncludeEmojis, "emoji", false, "include emojis")
	f.StringVar(&opts.Language, "lang", "", "output language")
	f.BoolVarP(&stream, "stream", "s", false, "stream tokens as they arrive")
	return cmd
}

func generateStream(ctx context.Context, r *aipostblog.Router, req aipostblog.GenerationRequest, tier aipostblog.PlanTier, w io.Writer) (aipostblog.GenerationResult, error) {
	s, err := r.RouteStream(ctx, req, tier)
	if err != nil {
		return aipostblog.GenerationResult{}, err
	}
	defer s.Close()

	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return aipostblog.GenerationResult{}, err
		}
		switch ev.Type {
		case aipostblog.EventToken:
			fmt.Fprint(w, ev.Delta)
		case aipostblog.EventError:
			return aipostblog.GenerationResult{}, fmt.Errorf("stream %s: %s", s.Model(), ev.Message)
		}
	}
	fmt.Fprintln(w)
	return s.Result(), nil
}

func newRolloverCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Start a fresh period for every expired quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services(cmd.Context(), aipostblog.PlanFree)
			if err != nil {
				return err
			}
			defer svc.Close()

			if watch {
				a.logger.Info("rollover sweeper started", zap.Duration("interval", a.cfg.RolloverInterval))
				err := svc.ledger.Run(cmd.Context(), a.cfg.RolloverInterval)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			n, err := svc.ledger.Rollover(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled %d quota(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep sweeping every rollover_interval until interrupted")
	return cmd
}

func parseTier(s string) (aipostblog.PlanTier, error) {
	tier := aipostblog.PlanTier(s)
	if !tier.Valid() {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return tier, nil
}

func printQuota(w io.Writer, q aipostblog.Quota) {
	fmt.Fprintf(w, "quota %s (%s): %d/%d used, %d remaining, resets %s\n",
		q.UserID, q.Tier, q.TokensUsed, q.TokensTotal, q.Remaining(), q.ResetAt.Format("2006-01-02"))
}
