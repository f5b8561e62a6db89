package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// TerraformProvisioner runs the terraform binary against a job's
// provisioning directory. With Apply false it stops after a saved plan,
// which keeps development runs from creating cloud resources.
type TerraformProvisioner struct {
	Apply bool
}

func (p TerraformProvisioner) Provision(ctx context.Context, terraformDir string, logs *job.LogSink) (string, error) {
	logs.Infof("Initializing Terraform working directory")
	if err := runCommand(ctx, logs, terraformDir, "terraform", "init", "-input=false", "-no-color"); err != nil {
		return "", fmt.Errorf("terraform init failed: %w", err)
	}

	if !p.Apply {
		logs.Infof("Dry run: planning only, no resources will be created")
		if err := runCommand(ctx, logs, terraformDir, "terraform", "plan", "-input=false", "-no-color", "-out=tfplan"); err != nil {
			return "", fmt.Errorf("terraform plan failed: %w", err)
		}
		return "dry run: terraform plan succeeded, apply disabled", nil
	}

	logs.Infof("Applying Terraform configuration")
	if err := runCommand(ctx, logs, terraformDir, "terraform", "apply", "-input=false", "-no-color", "-auto-approve"); err != nil {
		return "", fmt.Errorf("terraform apply failed: %w", err)
	}

	ip, err := terraformOutput(ctx, terraformDir, "public_ip")
	if err != nil {
		return "", fmt.Errorf("failed to read public_ip output: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s:8080", ip)
	logs.Infof("Deployment reachable at %s", endpoint)
	return endpoint, nil
}

// terraformOutput reads a single raw output value. cmd.Output is used
// instead of the streaming runner because the value is the result, not
// progress.
func terraformOutput(ctx context.Context, dir, name string) (string, error) {
	cmd := exec.CommandContext(ctx, "terraform", "output", "-raw", name)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", fmt.Errorf("output %q is empty", name)
	}
	return value, nil
}
