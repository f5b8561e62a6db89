package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

func TestContainerize_WritesAssetsAndArchive(t *testing.T) {
	workdir := t.TempDir()
	repoDir := filepath.Join(workdir, "repo")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "app.py"), []byte("print('hi')\n"), 0o644))

	logs := job.NewLogSink()
	tarPath, err := DockerContainerizer{}.Containerize(context.Background(), workdir, repoDir, Analysis{InternalPort: 5000}, logs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workdir, "app.tar.gz"), tarPath)

	compose, err := os.ReadFile(filepath.Join(repoDir, "docker-compose.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(compose), `"8080:5000"`)

	for _, name := range []string{"Dockerfile", "Makefile"} {
		_, statErr := os.Stat(filepath.Join(repoDir, name))
		assert.NoError(t, statErr, name)
	}

	names := readArchiveNames(t, tarPath)
	assert.Contains(t, names, "app/app.py")
	assert.Contains(t, names, "app/docker-compose.yml")
	assert.Contains(t, names, "app/Dockerfile")
}

func TestContainerize_DefaultsPortWhenUnknown(t *testing.T) {
	workdir := t.TempDir()
	repoDir := filepath.Join(workdir, "repo")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))

	logs := job.NewLogSink()
	_, err := DockerContainerizer{}.Containerize(context.Background(), workdir, repoDir, Analysis{}, logs)
	require.NoError(t, err)

	compose, err := os.ReadFile(filepath.Join(repoDir, "docker-compose.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(compose), `"8080:8080"`)
}

func TestArchiveRepo_SkipsSymlinks(t *testing.T) {
	workdir := t.TempDir()
	repoDir := filepath.Join(workdir, "repo")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(repoDir, "real.txt"), filepath.Join(repoDir, "link.txt")))

	tarPath := filepath.Join(workdir, "out.tar.gz")
	require.NoError(t, archiveRepo(repoDir, tarPath))

	names := readArchiveNames(t, tarPath)
	assert.Contains(t, names, "app/real.txt")
	assert.NotContains(t, names, "app/link.txt")
}

func readArchiveNames(t *testing.T, tarPath string) []string {
	t.Helper()
	f, err := os.Open(tarPath)
	require.NoError(t, err)
	defer f.Close()

	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, strings.TrimSuffix(hdr.Name, "/"))
	}
	return names
}
