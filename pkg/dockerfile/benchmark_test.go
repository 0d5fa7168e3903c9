package dockerfile

import (
	"strconv"
	"strings"
	"testing"
)

const simpleDockerfile = `FROM ubuntu:20.04
RUN apt-get update && apt-get install -y curl
COPY . /app
WORKDIR /app
EXPOSE 8080
CMD ["./app"]`

const complexDockerfile = `# syntax=docker/dockerfile:1.4
ARG NODE_VERSION=16
FROM --platform=linux/amd64 node:${NODE_VERSION}-alpine AS base

# Install dependencies
WORKDIR /app
COPY package*.json ./
RUN --mount=type=cache,target=/root/.npm \
    npm ci --only=production

# Build stage
FROM base AS build
RUN --mount=type=cache,target=/root/.npm \
    npm ci
COPY . .
RUN npm run build

# Production stage
FROM nginx:alpine AS production
COPY --from=build /app/dist /usr/share/nginx/html
COPY --chown=nginx:nginx nginx.conf /etc/nginx/nginx.conf
COPY <<EOF /etc/nginx/conf.d/health.conf
location /health {
    return 200 "ok";
}
EOF

# Health check
HEALTHCHECK --interval=30s --timeout=3s --start-period=5s --retries=3 \
    CMD curl -f http://localhost/ || exit 1

# Metadata
LABEL maintainer="test@example.com" \
      version="1.0.0" \
      description="Multi-stage Node.js application"

EXPOSE 80 443/tcp
USER nginx
STOPSIGNAL SIGTERM

ENTRYPOINT ["nginx"]
CMD ["-g", "daemon off;"]`

const realWorldDockerfile = `# syntax=docker/dockerfile:1.4

# Build dependencies
FROM ubuntu:20.04 AS build-deps
RUN apt-get update && apt-get install -y \
    build-essential \
    curl \
    git \
    # python toolchain
    python3 \
    python3-pip \
    nodejs \
    npm

# Python dependencies
FROM build-deps AS python-deps
WORKDIR /python-deps
COPY requirements.txt .
RUN --mount=type=cache,target=/root/.cache/pip \
    pip3 install --user -r requirements.txt

# Node.js dependencies
FROM build-deps AS node-deps
WORKDIR /node-deps
COPY package*.json ./
RUN --mount=type=cache,target=/root/.npm \
    npm ci --only=production

# Build application
FROM build-deps AS builder
WORKDIR /src

# Copy Python dependencies
COPY --from=python-deps /root/.local /root/.local
ENV PATH=/root/.local/bin:$PATH

# Copy Node.js dependencies
COPY --from=node-deps /node-deps/node_modules ./node_modules

# Copy source code
COPY . .

# Build application
RUN <<EOT bash
set -e
make build
make test
EOT

# Runtime image
FROM ubuntu:20.04 AS runtime
RUN apt-get update && apt-get install -y \
    python3 \
    python3-distutils \
    nodejs \
    nginx \
    supervisor \
    && rm -rf /var/lib/apt/lists/*

# Create app user
RUN useradd -m -u 1000 appuser

# Copy application
COPY --from=builder --chown=appuser:appuser /src/dist /app
COPY --from=python-deps --chown=appuser:appuser /root/.local /home/appuser/.local

# Copy configuration
COPY --chown=appuser:appuser config/nginx.conf /etc/nginx/nginx.conf
COPY --chown=appuser:appuser config/supervisord.conf /etc/supervisor/conf.d/supervisord.conf

# Set environment
ENV PATH=/home/appuser/.local/bin:$PATH
ENV NODE_ENV=production
ENV PYTHONPATH /app

WORKDIR /app
USER appuser

# Health check
HEALTHCHECK --interval=30s --timeout=10s --start-period=30s --retries=3 \
    CMD curl -f http://localhost:8080/health || exit 1

# Expose ports
EXPOSE 8080 8443

# Metadata
LABEL maintainer="devops@example.com" \
      version="2.1.0" \
      description="Multi-language web application" \
      org.opencontainers.image.title="MyApp" \
      org.opencontainers.image.description="Production web application" \
      org.opencontainers.image.vendor="Example Corp" \
      org.opencontainers.image.licenses="MIT"

# Start application
CMD ["/usr/bin/supervisord", "-c", "/etc/supervisor/conf.d/supervisord.conf"]`

func BenchmarkParserSimple(b *testing.B) {
	for i := 0; i < b.N; i++ {
		parser := New()
		_, err := parser.Parse(strings.NewReader(simpleDockerfile))
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParserComplex(b *testing.B) {
	for i := 0; i < b.N; i++ {
		parser := New()
		_, err := parser.Parse(strings.NewReader(complexDockerfile))
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParserRealWorld(b *testing.B) {
	for i := 0; i < b.N; i++ {
		parser := New()
		_, err := parser.Parse(strings.NewReader(realWorldDockerfile))
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidatorRealWorld(b *testing.B) {
	doc, err := Parse(realWorldDockerfile)
	if err != nil {
		b.Fatal(err)
	}

	validator := NewValidator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if HasErrors(validator.Validate(doc)) {
			b.Fatal("unexpected validation errors")
		}
	}
}

func BenchmarkRenderRealWorld(b *testing.B) {
	doc, err := Parse(realWorldDockerfile)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = doc.String()
	}
}

// Memory allocation benchmarks
func BenchmarkParserMemoryComplex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(complexDockerfile); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParserMemoryRealWorld(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(realWorldDockerfile); err != nil {
			b.Fatal(err)
		}
	}
}

// Scalability tests with varying sizes
func BenchmarkParserScaling(b *testing.B) {
	for _, lines := range []int{10, 100, 1000, 10000} {
		dockerfile := generateDockerfile(lines)
		b.Run(strconv.Itoa(lines)+"Lines", func(b *testing.B) {
			b.SetBytes(int64(len(dockerfile)))
			for i := 0; i < b.N; i++ {
				if _, err := Parse(dockerfile); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// generateDockerfile builds a valid Dockerfile with roughly the given number
// of instructions.
func generateDockerfile(lines int) string {
	var builder strings.Builder
	builder.WriteString("FROM ubuntu:20.04\n")

	for i := 1; i < lines; i++ {
		n := strconv.Itoa(i)
		switch i % 7 {
		case 0:
			builder.WriteString("RUN apt-get update \\\n    && echo " + n + "\n")
		case 1:
			builder.WriteString("ENV VAR" + n + "=value" + n + "\n")
		case 2:
			builder.WriteString("COPY file" + n + ".txt /app/\n")
		case 3:
			builder.WriteString("WORKDIR /app/dir" + n + "\n")
		case 4:
			builder.WriteString("EXPOSE " + strconv.Itoa(8000+i%1000) + "\n")
		case 5:
			builder.WriteString("LABEL key" + n + "=\"value " + n + "\"\n")
		case 6:
			builder.WriteString("# comment " + n + "\n")
		}
	}

	builder.WriteString("CMD [\"./app\"]\n")
	return builder.String()
}

func BenchmarkParserConcurrent(b *testing.B) {
	parser := New()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, err := parser.Parse(strings.NewReader(complexDockerfile))
			if err != nil {
				b.Error(err)
				return
			}
		}
	})
}
