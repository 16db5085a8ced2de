package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stackctl/cmd/stackctl/ui"
	"stackctl/internal/apiclient"
	"stackctl/internal/config"
)

var (
	apiUsername    string
	apiPassword    string
	apiName        string
	apiCode        string
	apiDescription string
	apiUnitID      string
	apiSkip        int
	apiLimit       int
	apiExpires     time.Duration
	apiOutput      string

	apiContentType      string
	apiResponsible      string
	apiVisibleUnit      string
	apiVisibleFunctions []string
)

// cliNavigator tells the user to log in again; a terminal has no login view.
type cliNavigator struct {
	w io.Writer
}

func (n cliNavigator) Navigate(path string) {
	fmt.Fprintln(n.w, `session expired: run "stackctl api login"`)
}

// newAPIClient is replaced in tests.
var newAPIClient = func(cmd *cobra.Command) (*apiclient.Client, error) {
	session, err := apiclient.NewFileSession(config.ResolvePath(workspace, cfg.API.SessionFile))
	if err != nil {
		return nil, err
	}
	return apiclient.New(cfg.API.BaseURL, session,
		apiclient.WithTimeout(cfg.GetAPITimeout()),
		apiclient.WithLoginPath(cfg.API.LoginPath),
		apiclient.WithNavigator(cliNavigator{w: cmd.ErrOrStderr()}),
	)
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Talk to the backend REST API",
}

var apiLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := apiPassword
		if password == "" {
			password = os.Getenv("STACKCTL_API_PASSWORD")
		}
		if apiUsername == "" || password == "" {
			return usageError(cmd, fmt.Errorf("--username and --password (or STACKCTL_API_PASSWORD) are required"))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if _, err := c.Login(ctx, apiUsername, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.DefaultStyles().Success.Render("logged in as "+apiUsername))
		return nil
	},
}

var apiLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var apiMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		u, err := c.Me(ctx)
		if err != nil {
			return err
		}
		t := ui.NewSimpleTable("", []string{"ID", "Email", "Active", "Superuser"})
		t.AddRow(u.ID.String(), u.Email, strconv.FormatBool(u.IsActive), strconv.FormatBool(u.IsSuperuser))
		fmt.Fprint(cmd.OutOrStdout(), t.View(ui.DefaultStyles()))
		return nil
	},
}

var apiUnitsCmd = &cobra.Command{
	Use:     "business-units",
	Aliases: []string{"bu"},
	Short:   "Manage business units",
}

var apiUnitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List business units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		page, err := c.ListBusinessUnits(ctx, apiclient.ListOptions{Skip: apiSkip, Limit: apiLimit})
		if err != nil {
			return err
		}
		t := ui.NewSimpleTable(fmt.Sprintf("Business units (%d)", page.Count), []string{"ID", "Code", "Name", "Active"})
		for _, bu := range page.Data {
			t.AddRow(bu.ID.String(), bu.Code, bu.Name, strconv.FormatBool(bu.IsActive))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.View(ui.DefaultStyles()))
		return nil
	},
}

var apiUnitsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a business unit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		in := apiclient.BusinessUnitCreate{Name: apiName, Code: apiCode, IsActive: true}
		if apiDescription != "" {
			in.Description = &apiDescription
		}
		bu, err := c.CreateBusinessUnit(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created business unit %s (%s)\n", bu.Code, bu.ID)
		return nil
	},
}

var apiUnitsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a business unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		msg, err := c.DeleteBusinessUnit(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var apiFunctionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Manage functions",
}

var apiFunctionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List functions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := apiclient.FunctionFilter{ListOptions: apiclient.ListOptions{Skip: apiSkip, Limit: apiLimit}}
		if apiUnitID != "" {
			id, err := uuid.Parse(apiUnitID)
			if err != nil {
				return usageError(cmd, fmt.Errorf("invalid --business-unit %q: %w", apiUnitID, err))
			}
			filter.BusinessUnitID = &id
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		page, err := c.ListFunctions(ctx, filter)
		if err != nil {
			return err
		}
		t := ui.NewSimpleTable(fmt.Sprintf("Functions (%d)", page.Count), []string{"ID", "Code", "Name", "Business unit"})
		for _, fn := range page.Data {
			t.AddRow(fn.ID.String(), fn.Code, fn.Name, fn.BusinessUnitID.String())
		}
		fmt.Fprint(cmd.OutOrStdout(), t.View(ui.DefaultStyles()))
		return nil
	},
}

var apiFunctionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a function",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, err := uuid.Parse(apiUnitID)
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid --business-unit %q: %w", apiUnitID, err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		in := apiclient.FunctionCreate{Name: apiName, Code: apiCode, IsActive: true, BusinessUnitID: unit}
		if apiDescription != "" {
			in.Description = &apiDescription
		}
		fn, err := c.CreateFunction(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created function %s (%s)\n", fn.Code, fn.ID)
		return nil
	},
}

var apiFunctionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		msg, err := c.DeleteFunction(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var apiFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List, upload, fetch and delete stored files",
}

var apiFilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		page, err := c.ListFiles(ctx, apiclient.ListOptions{Skip: apiSkip, Limit: apiLimit})
		if err != nil {
			return err
		}
		t := ui.NewSimpleTable(fmt.Sprintf("Files (%d)", page.Count), []string{"ID", "Name", "Type", "Size"})
		for _, f := range page.Data {
			t.AddRow(f.ID.String(), f.OriginalFilename, f.ContentType, strconv.FormatInt(f.FileSize, 10))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.View(ui.DefaultStyles()))
		return nil
	},
}

var apiFilesURLCmd = &cobra.Command{
	Use:   "url <id>",
	Short: "Print a presigned download URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		u, err := c.FileDownloadURL(ctx, id, apiExpires)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.URL)
		return nil
	},
}

var apiFilesUploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		up := apiclient.Upload{Filename: filepath.Base(args[0]), ContentType: apiContentType}
		if up.ContentType == "" {
			up.ContentType = mime.TypeByExtension(filepath.Ext(args[0]))
		}
		var err error
		if up.ResponsibleFunctionID, err = optionalID("--responsible-function", apiResponsible); err != nil {
			return usageError(cmd, err)
		}
		if up.VisibleBUID, err = optionalID("--visible-bu", apiVisibleUnit); err != nil {
			return usageError(cmd, err)
		}
		for _, v := range apiVisibleFunctions {
			id, err := uuid.Parse(v)
			if err != nil {
				return usageError(cmd, fmt.Errorf("invalid --visible-function %q: %w", v, err))
			}
			up.VisibleFunctionIDs = append(up.VisibleFunctionIDs, id)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		up.Content = f

		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		stored, err := c.UploadFile(ctx, up)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s, %d bytes)\n", stored.OriginalFilename, stored.ID, stored.FileSize)
		return nil
	},
}

var apiFilesDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a file to --output or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if apiOutput != "" && apiOutput != "-" {
			f, createErr := os.Create(apiOutput)
			if createErr != nil {
				return createErr
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					_ = os.Remove(apiOutput)
				}
			}()
			w = f
		}

		ctx, cancel := signalContext()
		defer cancel()
		d, err := c.DownloadFile(ctx, id, w)
		if err != nil {
			return err
		}
		if w != cmd.OutOrStdout() {
			fmt.Fprintf(cmd.ErrOrStderr(), "saved %s to %s (%d bytes)\n", d.Filename, apiOutput, d.Size)
		}
		return nil
	},
}

// optionalID parses a UUID flag value; empty means unset.
func optionalID(flag, v string) (*uuid.UUID, error) {
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", flag, v, err)
	}
	return &id, nil
}

var apiFilesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid id %q: %w", args[0], err))
		}
		c, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		msg, err := c.DeleteFile(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	apiLoginCmd.Flags().StringVarP(&apiUsername, "username", "u", "", "Account email")
	apiLoginCmd.Flags().StringVarP(&apiPassword, "password", "p", "", "Password (or STACKCTL_API_PASSWORD)")

	for _, c := range []*cobra.Command{apiUnitsListCmd, apiFunctionsListCmd, apiFilesListCmd} {
		c.Flags().IntVar(&apiSkip, "skip", 0, "Items to skip")
		c.Flags().IntVar(&apiLimit, "limit", 100, "Maximum items")
	}
	for _, c := range []*cobra.Command{apiUnitsCreateCmd, apiFunctionsCreateCmd} {
		c.Flags().StringVar(&apiName, "name", "", "Name")
		c.Flags().StringVar(&apiCode, "code", "", "Short code")
		c.Flags().StringVar(&apiDescription, "description", "", "Description")
		_ = c.MarkFlagRequired("name")
		_ = c.MarkFlagRequired("code")
	}
	apiFunctionsListCmd.Flags().StringVar(&apiUnitID, "business-unit", "", "Only functions of this business unit")
	apiFunctionsCreateCmd.Flags().StringVar(&apiUnitID, "business-unit", "", "Owning business unit")
	_ = apiFunctionsCreateCmd.MarkFlagRequired("business-unit")
	apiFilesURLCmd.Flags().DurationVar(&apiExpires, "expires", time.Hour, "URL lifetime")
	apiFilesUploadCmd.Flags().StringVar(&apiContentType, "content-type", "", "Content type (default: from the file extension)")
	apiFilesUploadCmd.Flags().StringVar(&apiResponsible, "responsible-function", "", "Function responsible for the file")
	apiFilesUploadCmd.Flags().StringVar(&apiVisibleUnit, "visible-bu", "", "Business unit that can view the file")
	apiFilesUploadCmd.Flags().StringSliceVar(&apiVisibleFunctions, "visible-function", nil, "Functions that can view the file (repeatable)")
	apiFilesDownloadCmd.Flags().StringVarP(&apiOutput, "output", "o", "", "Write to this path instead of stdout")

	apiUnitsCmd.AddCommand(apiUnitsListCmd, apiUnitsCreateCmd, apiUnitsDeleteCmd)
	apiFunctionsCmd.AddCommand(apiFunctionsListCmd, apiFunctionsCreateCmd, apiFunctionsDeleteCmd)
	apiFilesCmd.AddCommand(apiFilesListCmd, apiFilesUploadCmd, apiFilesDownloadCmd, apiFilesURLCmd, apiFilesDeleteCmd)
	apiCmd.AddCommand(apiLoginCmd, apiLogoutCmd, apiMeCmd, apiUnitsCmd, apiFunctionsCmd, apiFilesCmd)
}
