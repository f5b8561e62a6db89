package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

const defaultAppPort = 8080

// httpHintPatterns are source fragments that betray an HTTP server.
var httpHintPatterns = []*regexp.Regexp{
	// Python
	regexp.MustCompile(`from\s+flask\s+import\s+`),
	regexp.MustCompile(`from\s+fastapi\s+import\s+`),
	regexp.MustCompile(`django\.core`),
	regexp.MustCompile(`uvicorn\.run`),
	regexp.MustCompile(`app\.run\(`),
	// Node
	regexp.MustCompile(`require\(['"]express['"]\)`),
	regexp.MustCompile(`from\s+['"]express['"]`),
	regexp.MustCompile(`app\.listen\(`),
	// Go
	regexp.MustCompile(`http\.ListenAndServe\(`),
	// Java/Spring
	regexp.MustCompile(`@RestController`),
	regexp.MustCompile(`SpringApplication\.run\(`),
}

// portPatterns extract a listening port from sources or docker files.
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`EXPOSE\s+(\d+)`),
	regexp.MustCompile(`ports:\s*\n\s*-\s*['"]?(\d+):`),
	regexp.MustCompile(`port\s*=\s*(\d+)`),
	regexp.MustCompile(`listen\(\s*(\d+)\s*\)`),
	regexp.MustCompile(`run\([^)]*port\s*=\s*(\d+)`),
	regexp.MustCompile(`--port(?:=|\s+)(\d+)`),
}

// frameworkPorts are last-resort defaults keyed by framework mentions.
var frameworkPorts = []struct {
	name string
	port int
}{
	{"flask", 5000},
	{"fastapi", 8000},
	{"django", 8000},
	{"express", 3000},
	{"next", 3000},
	{"rails", 3000},
	{"spring", 8080},
	{"go", 8080},
}

var httpSourceExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".go": true,
	".java": true, ".kt": true, ".rb": true, ".rs": true,
}

var dockerFileNames = map[string]bool{
	"dockerfile":         true,
	"compose.yaml":       true,
	"compose.yml":        true,
	"docker-compose.yml": true,
}

// RepoAnalyzer inspects a cloned repository with static heuristics: a
// tree listing for the generator prompt, HTTP-server detection, and
// internal-port inference.
type RepoAnalyzer struct {
	// MaxDepth limits the tree listing depth.
	MaxDepth int
}

func (a RepoAnalyzer) Analyze(ctx context.Context, repoDir string, logs *job.LogSink) (Analysis, error) {
	maxDepth := a.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}

	tree, err := listTree(repoDir, maxDepth)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to list repository tree: %w", err)
	}
	logs.Infof("Repository tree (max depth %d):\n%s", maxDepth, strings.Join(tree, "\n"))

	analysis := Analysis{Tree: tree}
	analysis.IsHTTPService = isHTTPService(repoDir)
	if !analysis.IsHTTPService {
		logs.Warnf("No HTTP server hints found in repository sources")
		return analysis, nil
	}

	analysis.InternalPort = inferAppPort(repoDir, logs)
	return analysis, nil
}

// listTree returns relative paths up to maxDepth, directories suffixed
// with a slash.
func listTree(root string, maxDepth int) ([]string, error) {
	var items []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if depth > maxDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		entry := filepath.ToSlash(rel)
		if d.IsDir() {
			entry += "/"
		}
		items = append(items, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// isHTTPService scans candidate sources for any HTTP server hint.
func isHTTPService(repoDir string) bool {
	found := false
	_ = filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !httpSourceExts[filepath.Ext(name)] && !dockerFileNames[name] {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for _, pat := range httpHintPatterns {
			if pat.Match(content) {
				found = true
				return fs.SkipAll
			}
		}
		return nil
	})
	return found
}

// inferAppPort guesses the internal listening port from explicit port
// declarations first, then framework defaults, then defaultAppPort.
func inferAppPort(repoDir string, logs *job.LogSink) int {
	port := 0
	_ = filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		ext := filepath.Ext(name)
		if !dockerFileNames[name] && ext != ".py" && ext != ".js" && ext != ".ts" && ext != ".go" {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for _, pat := range portPatterns {
			m := pat.FindSubmatch(content)
			if m == nil {
				continue
			}
			p, convErr := strconv.Atoi(string(m[1]))
			if convErr == nil && p >= 1 && p <= 65535 {
				logs.Infof("Inferred app port %d from %s", p, d.Name())
				port = p
				return fs.SkipAll
			}
		}
		return nil
	})
	if port != 0 {
		return port
	}

	for _, hint := range frameworkPorts {
		if repoMentions(repoDir, hint.name) {
			logs.Infof("Fallback inferred by framework %s: port %d", hint.name, hint.port)
			return hint.port
		}
	}

	logs.Infof("Could not infer port; defaulting to %d", defaultAppPort)
	return defaultAppPort
}

func repoMentions(repoDir, needle string) bool {
	found := false
	_ = filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found || d.IsDir() {
			return nil
		}
		switch filepath.Ext(strings.ToLower(d.Name())) {
		case ".py", ".js", ".ts", ".rb", ".java", ".go":
		default:
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(string(content)), needle) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
