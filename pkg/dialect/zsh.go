package dialect

import "fmt"

// zshScript registers one function in each of zsh's hook arrays. zsh
// passes the command text to preexec as $1, so no BASH_COMMAND-style
// inspection is needed; the completion system never runs these arrays,
// so the only filters required are the running-flag guards.
//
// The (r) subscript flag checks array membership before appending, which
// keeps re-sourcing idempotent.
const zshScript = `# shellmark shell integration (zsh)
__shellmark_emit() {
  printf '\033]@CHANNEL@;%s\007' "$1"
}

__shellmark_preexec() {
  (( __shellmark_running )) && return
  typeset -g __shellmark_running=1
  __shellmark_emit "START;$1"
}

__shellmark_precmd() {
  local __shellmark_status=$?
  (( __shellmark_running )) || return
  typeset -g __shellmark_running=0
  __shellmark_emit "END;$__shellmark_status"
  __shellmark_emit "PWD;$PWD"
}

typeset -ga preexec_functions precmd_functions
if [[ -z ${preexec_functions[(r)__shellmark_preexec]} ]]; then
  preexec_functions+=(__shellmark_preexec)
fi
if [[ -z ${precmd_functions[(r)__shellmark_precmd]} ]]; then
  precmd_functions+=(__shellmark_precmd)
fi
`

type zshDialect struct{}

// Zsh returns the zsh integration.
func Zsh() Dialect { return zshDialect{} }

func (zshDialect) Name() string { return NameZsh }

func (zshDialect) Script() string { return renderScript(zshScript) }

// Launch points ZDOTDIR at the scratch directory whose .zshrc loads the
// user's real ~/.zshrc first and the integration after it.
func (d zshDialect) Launch(shellPath, scratchDir string) (Launch, error) {
	rc := "# shellmark bootstrap (zsh)\n" +
		"[ -f \"$HOME/.zshrc\" ] && . \"$HOME/.zshrc\"\n\n" +
		d.Script()
	if _, err := writeBootstrap(scratchDir, ".zshrc", rc); err != nil {
		return Launch{}, fmt.Errorf("zsh bootstrap: %w", err)
	}
	return Launch{
		Args: []string{shellPath, "-i"},
		Env:  []string{"ZDOTDIR=" + scratchDir},
	}, nil
}
