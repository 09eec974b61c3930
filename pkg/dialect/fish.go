package dialect

import "fmt"

// fishScript hangs one function off each of fish's lifecycle events.
// fish_preexec receives the command line as $argv[1]; fish_postexec
// fires after the command with $status still holding its exit code,
// before the next prompt is drawn.
//
// fish replaces a function (and its event registration) on
// redefinition, so re-sourcing the script is idempotent without any
// explicit membership check.
const fishScript = `# shellmark shell integration (fish)
function __shellmark_emit
  printf '\033]@CHANNEL@;%s\007' $argv[1]
end

function __shellmark_preexec --on-event fish_preexec
  set -q __shellmark_running; and return
  set -g __shellmark_running 1
  __shellmark_emit "START;$argv[1]"
end

function __shellmark_postexec --on-event fish_postexec
  set -l __shellmark_status $status
  set -q __shellmark_running; or return
  set -e __shellmark_running
  __shellmark_emit "END;$__shellmark_status"
  __shellmark_emit "PWD;$PWD"
end
`

type fishDialect struct{}

// Fish returns the fish integration.
func Fish() Dialect { return fishDialect{} }

func (fishDialect) Name() string { return NameFish }

func (fishDialect) Script() string { return renderScript(fishScript) }

// Launch sources the integration with -C after fish's normal startup,
// so the user's own config.fish has already loaded.
func (d fishDialect) Launch(shellPath, scratchDir string) (Launch, error) {
	path, err := writeBootstrap(scratchDir, "integration.fish", d.Script())
	if err != nil {
		return Launch{}, fmt.Errorf("fish bootstrap: %w", err)
	}
	return Launch{
		Args: []string{shellPath, "-i", "-C", "source " + path},
	}, nil
}
