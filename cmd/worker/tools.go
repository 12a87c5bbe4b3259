package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxdesk/conversation-service/internal/auth"
	"github.com/fluxdesk/conversation-service/internal/config"
	"github.com/fluxdesk/conversation-service/internal/domain"
)

func newLinkCompaniesCmd() *cobra.Command {
	var (
		tenantID int64
		batch    int
	)
	cmd := &cobra.Command{
		Use:   "link-companies",
		Short: "Attach contacts without a company to the company of their email domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID <= 0 {
				return fmt.Errorf("--tenant is required")
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			total := 0
			for {
				linked, err := s.worker.Linker.LinkTenant(ctx, tenantID, batch)
				total += linked
				if err != nil {
					return err
				}
				// a short batch means no unlinked contact with a matching domain is left
				if linked < batch {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %d contacts\n", total)
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "Tenant to process.")
	cmd.Flags().IntVar(&batch, "batch", 500, "Contacts examined per batch.")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "hash-token",
		Short: "Generate a channel inbound token and print it with its bcrypt hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if token == "" {
				if token, err = auth.GenerateToken(); err != nil {
					return err
				}
			}
			hashed, err := auth.HashToken(token, cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", token)
			fmt.Fprintf(out, "hash:  %s\n", hashed)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Hash this token instead of generating one.")
	return cmd
}

func newIssueTokenCmd() *cobra.Command {
	var (
		tenantID int64
		subject  string
		role     string
		service  bool
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an operator bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID <= 0 || subject == "" {
				return fmt.Errorf("--tenant and --subject are required")
			}
			r := domain.OperatorRole(strings.ToUpper(role))
			switch r {
			case domain.OperatorRoleAdmin, domain.OperatorRoleAgent, domain.OperatorRoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			subjectType := domain.SubjectTypeOperator
			if service {
				subjectType = domain.SubjectTypeService
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(subject, subjectType, tenantID, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_at: %s\n", token, expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "Tenant the token is bound to.")
	cmd.Flags().StringVar(&subject, "subject", "", "Operator or service account id.")
	cmd.Flags().StringVar(&role, "role", string(domain.OperatorRoleAgent), "ADMIN, AGENT or VIEWER.")
	cmd.Flags().BoolVar(&service, "service", false, "Issue a service-account token.")
	return cmd
}
