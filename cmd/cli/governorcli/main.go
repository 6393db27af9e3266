package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/core-tools/hsu-governor/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Address   string `long:"address" description:"gateway address, host:port" default:"localhost:8280"`
	Operation string `long:"op" description:"operation: list, status, usage, trends, violations, findings, prediction, scaling, stop, remove" default:"list"`
	Session   string `long:"session" description:"session id, required for per-session operations"`
	Resource  string `long:"resource" description:"resource type for trends, e.g. memory, cpu; empty means all"`
	Window    string `long:"window" description:"trend window, e.g. 10m" default:"10m"`
	Limit     int    `long:"limit" description:"max entries for violations/findings" default:"50"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logger := logging.NewStdLogger(logPrefix("hsu-governor"))

	logger.Debugf("opts: %+v", opts)

	path, method, err := resolveOperation(opts)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("http://%s/api/v1%s", opts.Address, path)

	client := &http.Client{Timeout: 10 * time.Second}
	request, err := http.NewRequest(method, url, nil)
	if err != nil {
		logger.Errorf("Failed to create request: %v", err)
		os.Exit(1)
	}

	response, err := client.Do(request)
	if err != nil {
		logger.Errorf("Failed to reach gateway at %s: %v", opts.Address, err)
		os.Exit(1)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		logger.Errorf("Failed to read response: %v", err)
		os.Exit(1)
	}

	if response.StatusCode >= 400 {
		logger.Errorf("Gateway returned %s: %s", response.Status, string(body))
		os.Exit(1)
	}

	fmt.Println(prettyJSON(body))
}

// resolveOperation maps the requested operation to a gateway route.
func resolveOperation(opts flagOptions) (path string, method string, err error) {
	sessionPath := func(suffix string) (string, error) {
		if opts.Session == "" {
			return "", fmt.Errorf("operation %q requires --session", opts.Operation)
		}
		return fmt.Sprintf("/sessions/%s%s", opts.Session, suffix), nil
	}

	method = "GET"
	switch opts.Operation {
	case "list":
		path = "/sessions"
	case "status":
		path, err = sessionPath("")
	case "usage":
		path, err = sessionPath("/usage")
	case "trends":
		if opts.Resource != "" {
			path, err = sessionPath(fmt.Sprintf("/series/%s?window=%s", opts.Resource, opts.Window))
		} else {
			path, err = sessionPath(fmt.Sprintf("/usage/history?limit=%d", opts.Limit))
		}
	case "violations":
		path, err = sessionPath(fmt.Sprintf("/violations?limit=%d", opts.Limit))
	case "findings":
		path, err = sessionPath(fmt.Sprintf("/findings?limit=%d", opts.Limit))
	case "prediction":
		path, err = sessionPath("/prediction")
	case "scaling":
		path, err = sessionPath("/scaling")
	case "stop":
		method = "POST"
		path, err = sessionPath("/stop")
	case "remove":
		method = "DELETE"
		path, err = sessionPath("")
	default:
		err = fmt.Errorf("unknown operation: %s", opts.Operation)
	}
	return path, method, err
}

func prettyJSON(body []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}
