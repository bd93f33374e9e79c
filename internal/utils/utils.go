package utils

import (
	"bufio"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path"
	"strings"
)

// AskForConfirmation reads a yes/no answer from r; an empty answer is yes
func AskForConfirmation(r io.Reader, s string) bool {
	reader := bufio.NewReader(r)

	fmt.Printf("%s [Y/n]: ", s)

	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes", "":
		return true
	default:
		return false
	}
}

func AskForConfirmationDefaultYes(s string) bool {
	return AskForConfirmation(os.Stdin, s)
}

// DumpOption writes opt as YAML to outputPath, creating the parent directory.
// An existing file is kept unless overwrite is set or the user confirms.
func DumpOption(opt interface{}, outputPath string, overwrite bool) error {
	buffer, err := yaml.Marshal(opt)
	if err != nil {
		return errors.Wrap(err, "marshal configuration")
	}

	parentPath := path.Dir(outputPath)
	if _, err := os.Stat(parentPath); os.IsNotExist(err) {
		if err := os.MkdirAll(parentPath, 0700); err != nil {
			return errors.Wrapf(err, "cannot create directory %s", parentPath)
		}
	}

	if !overwrite {
		if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
			if !AskForConfirmationDefaultYes("configuration " + outputPath + " already exist, overwrite?") {
				log.Infoln("abort")
				return nil
			}
		}
	}

	log.Infoln("writing configuration to", outputPath)
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s, check permissions", outputPath)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if _, err = w.Write(buffer); err != nil {
		return errors.Wrap(err, "cannot write configuration")
	}
	return w.Flush()
}
