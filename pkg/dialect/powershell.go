package dialect

import "fmt"

// powershellScript is the post-hoc dialect. PowerShell has no reliable
// pre-execution callback, so the prompt function consults the history
// cursor instead: when the most recent history id has advanced past the
// last observed one, a command just ran, and START is emitted
// retroactively for that entry immediately before END and PWD. Empty
// input produces no history entry and therefore no markers.
//
// Exit normalization: $? reports success as a boolean. Success maps to
// 0; on failure the raw $LASTEXITCODE is used when it is a non-zero
// integer, and 1 otherwise (failures without a numeric code, such as
// cmdlet errors).
//
// Re-sourcing replaces both the prompt function and the history cursor,
// so installation stays idempotent.
const powershellScript = `# shellmark shell integration (powershell)
$script:ShellmarkLastHistoryId = (Get-History -Count 1).Id
if ($null -eq $script:ShellmarkLastHistoryId) { $script:ShellmarkLastHistoryId = 0 }

function script:ShellmarkEmit([string]$Payload) {
  $esc = [char]27
  $bel = [char]7
  [Console]::Out.Write("$esc]@CHANNEL@;$Payload$bel")
}

function global:prompt {
  $ShellmarkOk = $?
  $ShellmarkHistory = Get-History -Count 1
  if ($ShellmarkHistory -and $ShellmarkHistory.Id -gt $script:ShellmarkLastHistoryId) {
    $script:ShellmarkLastHistoryId = $ShellmarkHistory.Id
    ShellmarkEmit "START;$($ShellmarkHistory.CommandLine)"
    if ($ShellmarkOk) {
      $ShellmarkCode = 0
    } elseif ($global:LASTEXITCODE -is [int] -and $global:LASTEXITCODE -ne 0) {
      $ShellmarkCode = $global:LASTEXITCODE
    } else {
      $ShellmarkCode = 1
    }
    ShellmarkEmit "END;$ShellmarkCode"
    ShellmarkEmit "PWD;$($PWD.Path)"
  }
  "PS $($PWD.Path)> "
}
`

type powershellDialect struct{}

// PowerShell returns the PowerShell integration.
func PowerShell() Dialect { return powershellDialect{} }

func (powershellDialect) Name() string { return NamePowerShell }

func (powershellDialect) Script() string { return renderScript(powershellScript) }

// Launch writes a profile that loads the user's own $PROFILE first and
// starts the shell with it, keeping the session interactive.
func (d powershellDialect) Launch(shellPath, scratchDir string) (Launch, error) {
	profile := "# shellmark bootstrap (powershell)\n" +
		"if (Test-Path $PROFILE) { . $PROFILE }\n\n" +
		d.Script()
	path, err := writeBootstrap(scratchDir, "profile.ps1", profile)
	if err != nil {
		return Launch{}, fmt.Errorf("powershell bootstrap: %w", err)
	}
	return Launch{
		Args: []string{shellPath, "-NoLogo", "-NoExit", "-ExecutionPolicy", "Bypass", "-File", path},
	}, nil
}
