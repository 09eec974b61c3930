package dialect

import "fmt"

// bashScript wires the DEBUG trap as the pre-execution trigger and
// PROMPT_COMMAND as the pre-prompt trigger.
//
// The DEBUG trap fires before every top-level simple command: once per
// pipeline stage, during completion passes, for each PROMPT_COMMAND
// entry at prompt time, and for the tail of this script when it is
// re-sourced with the trap already live. Four filters keep the state
// machine honest: COMP_LINE is set only during a completion pass; the
// at-prompt flag, raised by __shellmark_precmd and lowered when a
// command starts, confines START to the first firing after a prompt;
// the precmd name check and the PROMPT_COMMAND membership check drop
// prompt-time firings for the integration's own hook and for entries
// the user's own configuration had already chained in.
//
// The trap is installed by the script's last statement so none of the
// installation code fires it. The exit status is captured on the first
// line of the precmd function, before anything can clobber it.
const bashScript = `# shellmark shell integration (bash)
__shellmark_emit() {
  printf '\033]@CHANNEL@;%s\007' "$1"
}

__shellmark_in_prompt_command() {
  local -a __shellmark_entries
  local __shellmark_entry IFS=$'\n;'
  read -rd '' -a __shellmark_entries <<< "$PROMPT_COMMAND"
  for __shellmark_entry in "${__shellmark_entries[@]}"; do
    __shellmark_entry="${__shellmark_entry#"${__shellmark_entry%%[![:space:]]*}"}"
    __shellmark_entry="${__shellmark_entry%"${__shellmark_entry##*[![:space:]]}"}"
    [ "$__shellmark_entry" = "$1" ] && return 0
  done
  return 1
}

__shellmark_preexec() {
  [ -n "$COMP_LINE" ] && return
  [ -z "$__shellmark_at_prompt" ] && return
  case "$BASH_COMMAND" in
    __shellmark_precmd*) return ;;
  esac
  __shellmark_in_prompt_command "$BASH_COMMAND" && return
  unset __shellmark_at_prompt
  __shellmark_running=1
  __shellmark_emit "START;$BASH_COMMAND"
}

__shellmark_precmd() {
  local __shellmark_status=$?
  __shellmark_at_prompt=1
  [ -z "$__shellmark_running" ] && return
  unset __shellmark_running
  __shellmark_emit "END;$__shellmark_status"
  __shellmark_emit "PWD;$PWD"
}

case ";$PROMPT_COMMAND;" in
  *";__shellmark_precmd;"*) ;;
  *) PROMPT_COMMAND="__shellmark_precmd${PROMPT_COMMAND:+;$PROMPT_COMMAND}" ;;
esac
trap '__shellmark_preexec' DEBUG
`

type bashDialect struct{}

// Bash returns the bash integration.
func Bash() Dialect { return bashDialect{} }

func (bashDialect) Name() string { return NameBash }

func (bashDialect) Script() string { return renderScript(bashScript) }

// Launch writes an rcfile that loads the user's ~/.bashrc first, then
// the integration, and starts bash against it with --rcfile.
func (d bashDialect) Launch(shellPath, scratchDir string) (Launch, error) {
	rc := "# shellmark bootstrap (bash)\n" +
		"[ -f \"$HOME/.bashrc\" ] && . \"$HOME/.bashrc\"\n\n" +
		d.Script()
	path, err := writeBootstrap(scratchDir, "bashrc", rc)
	if err != nil {
		return Launch{}, fmt.Errorf("bash bootstrap: %w", err)
	}
	return Launch{Args: []string{shellPath, "--rcfile", path}}, nil
}
