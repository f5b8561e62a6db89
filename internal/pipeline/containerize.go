package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

const archiveName = "app.tar.gz"

// DockerContainerizer writes container assets into the repository and
// packs everything into a gzip tarball ready for upload. Existing
// Dockerfile, compose, or Makefile in the repository are overwritten so
// the deployment contract (host port 8080, make start) always holds.
type DockerContainerizer struct{}

func (DockerContainerizer) Containerize(ctx context.Context, workdir, repoDir string, analysis Analysis, logs *job.LogSink) (string, error) {
	port := analysis.InternalPort
	if port <= 0 {
		port = defaultAppPort
	}

	assets := map[string]string{
		"Dockerfile":         renderDockerfile(port),
		"docker-compose.yml": renderCompose(port),
		"Makefile":           renderMakefile(port),
	}
	for name, content := range assets {
		if err := os.WriteFile(filepath.Join(repoDir, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	logs.Infof("Docker assets written/updated (internal port %d, published on 8080)", port)

	tarPath := filepath.Join(workdir, archiveName)
	if err := archiveRepo(repoDir, tarPath); err != nil {
		return "", fmt.Errorf("failed to archive repository: %w", err)
	}
	logs.Infof("Packed application archive at %s", tarPath)
	return tarPath, nil
}

// archiveRepo packs repoDir into a gzip tarball with every entry under
// an "app/" prefix, matching what the remote-exec provisioner extracts.
func archiveRepo(repoDir, tarPath string) error {
	out, err := os.Create(tarPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(repoDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		// Symlinks and other special files do not survive the upload.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = filepath.ToSlash(filepath.Join("app", rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if writeErr := tw.WriteHeader(hdr); writeErr != nil {
			return writeErr
		}
		if info.IsDir() {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		_, copyErr := io.Copy(tw, f)
		f.Close()
		return copyErr
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}
