package pipeline

import "fmt"

// Container asset templates written into the repository before it is
// archived. The compose file always publishes the app on host port 8080
// so the security group and endpoint stay predictable.

const dockerfileTemplate = `# Generic multi-runtime build. Runtime-specific base images are chosen
# by the compose file; this image installs common toolchains so most
# repositories start without modification.
FROM ubuntu:24.04

ENV DEBIAN_FRONTEND=noninteractive
RUN apt-get update && apt-get install -y --no-install-recommends \
    python3 python3-pip python3-venv \
    nodejs npm \
    golang-go \
    default-jre \
    ca-certificates curl make \
    && rm -rf /var/lib/apt/lists/*

WORKDIR /app
COPY . /app

RUN if [ -f requirements.txt ]; then pip3 install --break-system-packages -r requirements.txt; fi \
    && if [ -f package.json ]; then npm install --omit=dev || npm install; fi

EXPOSE %d

CMD ["make", "start"]
`

const composeTemplate = `services:
  app:
    build: .
    restart: unless-stopped
    ports:
      - "8080:%d"
`

const makefileTemplate = `.PHONY: up down logs start

up:
	@if [ -f setup.sh ]; then \
		echo "Running setup.sh"; \
		bash ./setup.sh; \
	fi
	docker compose up -d --build
	docker compose ps

logs:
	docker compose logs -f --tail=100

down:
	docker compose down -v

start:
	@if [ -f app.py ]; then python3 app.py; \
	elif [ -f main.py ]; then python3 main.py; \
	elif [ -f manage.py ]; then python3 manage.py runserver 0.0.0.0:%d; \
	elif [ -f package.json ]; then npm start; \
	elif [ -f main.go ]; then go run .; \
	else echo "No recognized entrypoint" && exit 1; fi
`

// renderDockerfile fills the internal app port into the image template.
func renderDockerfile(port int) string { return fmt.Sprintf(dockerfileTemplate, port) }

func renderCompose(port int) string { return fmt.Sprintf(composeTemplate, port) }

func renderMakefile(port int) string { return fmt.Sprintf(makefileTemplate, port) }

// amiDataSnippet resolves the latest Canonical Ubuntu 24.04 AMI instead
// of hardcoding a region-specific image id.
const amiDataSnippet = `data "aws_ami" "ubuntu" {
  most_recent = true
  owners      = ["099720109477"] # Canonical

  filter {
    name   = "name"
    values = ["ubuntu/images/hvm-ssd-gp3/ubuntu-noble-24.04-amd64-server-*"]
  }

  filter {
    name   = "virtualization-type"
    values = ["hvm"]
  }
}`

// remoteExecSnippet uploads the application archive and starts it with
// docker compose on the freshly booted instance.
const remoteExecSnippet = `resource "null_resource" "deploy_app" {
  depends_on = [aws_instance.app]

  connection {
    type        = "ssh"
    host        = aws_instance.app.public_ip
    user        = "ubuntu"
    private_key = tls_private_key.deploy.private_key_pem
    timeout     = "10m"
  }

  provisioner "file" {
    source      = "%s"
    destination = "/home/ubuntu/%s"
  }

  provisioner "remote-exec" {
    inline = [
      "cloud-init status --wait",
      "sudo -n env DEBIAN_FRONTEND=noninteractive apt-get update -o Acquire::ForceIPv4=true -y",
      "sudo -n env DEBIAN_FRONTEND=noninteractive apt-get install -y make curl",
      "curl -fsSL https://get.docker.com | sudo sh",
      "sudo -n usermod -aG docker ubuntu",
      "sudo -n mkdir -p /opt",
      "sudo -n tar -xzf /home/ubuntu/%s -C /opt/",
      "cd /opt/app && sudo -n -E make up",
    ]
  }
}`

const terraformFallbackTemplate = `terraform {
  required_providers {
    aws = {
      source  = "hashicorp/aws"
      version = "~> 5.0"
    }
    tls = {
      source  = "hashicorp/tls"
      version = "~> 4.0"
    }
    null = {
      source  = "hashicorp/null"
      version = "~> 3.0"
    }
  }
}

provider "aws" {
  region = "%s"
}

%s

resource "tls_private_key" "deploy" {
  algorithm = "RSA"
  rsa_bits  = 4096
}

resource "aws_vpc" "main" {
  cidr_block           = "10.0.0.0/16"
  enable_dns_support   = true
  enable_dns_hostnames = true

  tags = {
    Name = "autodeploy-%s"
  }
}

resource "aws_subnet" "public" {
  vpc_id                  = aws_vpc.main.id
  cidr_block              = "10.0.1.0/24"
  map_public_ip_on_launch = true
}

resource "aws_internet_gateway" "gw" {
  vpc_id = aws_vpc.main.id
}

resource "aws_route_table" "public" {
  vpc_id = aws_vpc.main.id

  route {
    cidr_block = "0.0.0.0/0"
    gateway_id = aws_internet_gateway.gw.id
  }
}

resource "aws_route_table_association" "public" {
  subnet_id      = aws_subnet.public.id
  route_table_id = aws_route_table.public.id
}

resource "aws_security_group" "app" {
  name_prefix = "autodeploy-%s-"
  vpc_id      = aws_vpc.main.id

  ingress {
    description = "SSH"
    from_port   = 22
    to_port     = 22
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }

  ingress {
    description = "App"
    from_port   = 8080
    to_port     = 8080
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }

  egress {
    from_port   = 0
    to_port     = 0
    protocol    = "-1"
    cidr_blocks = ["0.0.0.0/0"]
  }
}

resource "aws_instance" "app" {
  ami                         = data.aws_ami.ubuntu.id
  instance_type               = "%s"
  subnet_id                   = aws_subnet.public.id
  vpc_security_group_ids      = [aws_security_group.app.id]
  associate_public_ip_address = true

  user_data = <<-EOF
    #cloud-config
    users:
      - name: ubuntu
        groups:
          - sudo
        sudo: "ALL=(ALL) NOPASSWD:ALL"
        shell: /bin/bash
        ssh_authorized_keys:
          - ${tls_private_key.deploy.public_key_openssh}
  EOF

  tags = {
    Name = "autodeploy-%s"
  }
}

%s

output "public_ip" {
  value = aws_instance.app.public_ip
}
`

// fallbackMainTF renders the known-good single-instance deployment for
// one job.
func fallbackMainTF(region, instanceType, shortID, tarName string) string {
	remoteExec := fmt.Sprintf(remoteExecSnippet, tarName, tarName, tarName)
	return fmt.Sprintf(terraformFallbackTemplate,
		region, amiDataSnippet, shortID, shortID, instanceType, shortID, remoteExec)
}

// terraformHints constrain what the generator is allowed to emit.
const terraformHints = `Hard requirements for the Terraform you produce:
- Provision exactly one aws_instance running Ubuntu 24.04 (use a data "aws_ami" lookup, never a hardcoded AMI id).
- Generate the SSH key in Terraform with tls_private_key; NEVER declare an aws_key_pair resource. Inject the public key through cloud-init user_data.
- Networking: a VPC, one public subnet, an internet gateway, a route table, and an aws_security_group allowing inbound 22 and 8080 plus unrestricted egress.
- Upload the application archive with a "file" provisioner; in a "remote-exec" provisioner on a null_resource install docker and make, extract the archive to /opt, and run 'make up' in /opt/app.
- Declare output "public_ip" with the instance's public IP.
- Output ONLY a single fenced code block containing the complete main.tf.`

// buildSystemPrompt is the fixed instruction set for the generator; the
// per-job facts travel in the delimited user prompt.
func buildSystemPrompt(region, instanceType string) string {
	return fmt.Sprintf(`You write production Terraform that deploys a containerized application to a single AWS EC2 instance.
Region: %s. Instance type: %s.

%s`, region, instanceType, terraformHints)
}
