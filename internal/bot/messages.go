package bot

// Operator-facing prompts and notices.
var (
	msgSecretPrompt   = "Welcome. Please enter the passphrase:"
	msgSecretWrong    = "Wrong passphrase. Try again:"
	msgPhonePrompt    = "Passphrase accepted. Send your phone number with a leading + (example: +998991234567):"
	msgPhoneInvalid   = "Please send the phone number with a leading '+'."
	msgCodePrompt     = "Verification code sent. Enter the code you received:"
	msgTwoFAPrompt    = "Your account has two-factor protection. Enter the second-factor secret:"
	msgSignedIn       = "Account connected. Group provisioning starts now..."
	msgCancelled      = "Conversation cancelled."
	msgWelcomeBack    = "Welcome back. Send your phone number with a leading + to begin:"
	msgSessionExpired = "Conversation expired after inactivity. Send /start to begin again."
)
