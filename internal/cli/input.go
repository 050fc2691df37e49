package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetPassword prints prompt to w and reads a secret from the terminal
// without echo.
func GetPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// loginFlags adds --user and --ask-password to a command.
type loginFlags struct {
	user        string
	askPassword bool
}

func (l *loginFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.user, "user", "", "username for the remote service")
	cmd.Flags().BoolVar(&l.askPassword, "ask-password", false, "prompt for the password")
}

// login returns nil when no credentials were given.
func (l *loginFlags) login(cmd *cobra.Command) (*models.Login, error) {
	if l.user == "" && !l.askPassword {
		return nil, nil
	}
	login := &models.Login{Username: l.user}
	if l.askPassword {
		pw, err := GetPassword(cmd.ErrOrStderr(), "Password")
		if err != nil {
			return nil, err
		}
		login.Password = pw
	}
	return login, nil
}
