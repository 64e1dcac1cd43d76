package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/anstrom/dualscan/internal/errors"
)

// prompter asks for missing scan inputs on an interactive terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and returns the trimmed answer line.
func (p *prompter) ask(question string) (string, error) {
	if _, err := fmt.Fprint(p.out, question); err != nil {
		return "", err
	}

	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("no answer to %q: %w", strings.TrimSpace(question), err)
	}
	return strings.TrimSpace(line), nil
}

// askPort asks for a port number.
func (p *prompter) askPort(question string) (int, error) {
	answer, err := p.ask(question)
	if err != nil {
		return 0, err
	}

	port, err := strconv.Atoi(answer)
	if err != nil {
		return 0, errors.WrapScanError(errors.CodeValidation,
			fmt.Sprintf("invalid port %q", answer), err)
	}
	return port, nil
}
