package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/service"
)

func (cli *commandLine) userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	var req service.CreateUserRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin, teacher or family account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.UserRole(strings.ToUpper(role))
			created, err := cli.users.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "created user %d <%s> as %s\n", created.ID, created.Email, created.Role)
			return nil
		},
	}
	flags := create.Flags()
	flags.StringVar(&req.Email, "email", "", "login email")
	flags.StringVar(&req.FullName, "name", "", "display name")
	flags.StringVar(&role, "role", string(models.RoleFamily), "ADMIN, TEACHER or FAMILY")
	flags.Int64Var(&req.FamilyID, "family", 0, "family id for FAMILY accounts")
	flags.StringVar(&req.Password, "password", "", "initial password")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	user.AddCommand(create)
	return user
}
