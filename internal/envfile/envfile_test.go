package envfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{"", Dev, false},
		{"dev", Dev, false},
		{"staging", Staging, false},
		{"prod", Prod, false},
		{"qa", "", true},
		{"PROD", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEnvironment)
				assert.Contains(t, err.Error(), tt.in)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsEnvironment(t *testing.T) {
	assert.True(t, IsEnvironment("staging"))
	assert.False(t, IsEnvironment(""))
	assert.False(t, IsEnvironment("backend"))
}

func TestLoadMissingFileNamesPath(t *testing.T) {
	root := t.TempDir()

	_, err := Load(root, Staging)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnvFile)

	var missing *MissingFileError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, filepath.Join(root, ".env.staging"), missing.Path)
	assert.Contains(t, err.Error(), filepath.Join(root, ".env.staging"))
}

func TestLoadParsesCommentsAndQuotes(t *testing.T) {
	root := t.TempDir()
	content := "# database\nPOSTGRES_USER=app\nPOSTGRES_PASSWORD=\"s3cr#t\"\n\nDOMAIN=localhost # trailing\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env.dev"), []byte(content), 0o644))

	vars, err := Load(root, Dev)
	require.NoError(t, err)

	assert.Equal(t, []string{"DOMAIN", "POSTGRES_PASSWORD", "POSTGRES_USER"}, vars.Keys())
	assert.Equal(t, "app", vars["POSTGRES_USER"])
	assert.Equal(t, "s3cr#t", vars["POSTGRES_PASSWORD"])
	assert.Equal(t, "localhost", vars["DOMAIN"])
	assert.Equal(t, []string{"DOMAIN=localhost", "POSTGRES_PASSWORD=s3cr#t", "POSTGRES_USER=app"}, vars.Environ())
}

func TestExportRespectsOverride(t *testing.T) {
	t.Setenv("STACKCTL_TEST_KEPT", "from-shell")
	t.Setenv("STACKCTL_TEST_NEW", "")
	os.Unsetenv("STACKCTL_TEST_NEW")

	vars := Vars{"STACKCTL_TEST_KEPT": "from-file", "STACKCTL_TEST_NEW": "fresh"}

	require.NoError(t, vars.Export(false))
	assert.Equal(t, "from-shell", os.Getenv("STACKCTL_TEST_KEPT"))
	assert.Equal(t, "fresh", os.Getenv("STACKCTL_TEST_NEW"))

	require.NoError(t, vars.Export(true))
	assert.Equal(t, "from-file", os.Getenv("STACKCTL_TEST_KEPT"))
}

func TestMasked(t *testing.T) {
	vars := Vars{"SECRET_KEY": "abc", "POSTGRES_PASSWORD": "pw", "DOMAIN": "localhost", "EMPTY_TOKEN": ""}

	assert.Equal(t, "********", vars.Masked("SECRET_KEY"))
	assert.Equal(t, "********", vars.Masked("POSTGRES_PASSWORD"))
	assert.Equal(t, "localhost", vars.Masked("DOMAIN"))
	assert.Equal(t, "", vars.Masked("EMPTY_TOKEN"))
}
