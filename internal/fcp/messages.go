package fcp

// User-facing notices posted to proposals. User-input mistakes are answered
// with a comment, never an error; label state stays untouched.
const (
	msgUsageFCP            = "Usage: `fcp <merge|postpone|close|cancel>`"
	msgAlreadyInFCP        = "This proposal is already in its final comment period."
	msgAlreadyProposed     = "A final comment period has already been proposed for this proposal. Please cancel the current one first."
	msgNotInFCPOrProposed  = "This proposal is not in its final comment period, and no final comment period has been proposed."
	msgNotProposed         = "No final comment period has been proposed for this proposal."
	msgNotTeamMember       = "Sorry, only team members can do that."
	msgNoStatusDocument    = "I could not find the status comment for this proposal. Something has gone wrong; please re-propose the final comment period."
	msgDuplicateConcern    = "That concern has already been raised on this proposal."
	msgUnknownConcern      = "I could not find that concern on this proposal. Concerns must be resolved with their exact text."
	msgConcernTextRequired = "Usage: `concern <description of the concern>`"
	msgResolveTextRequired = "Usage: `resolve <exact text of the concern>`"
	msgFCPCancelled        = "The final comment period for this proposal has been cancelled. It is back under review."

	msgFinishedMerge    = "The final comment period has elapsed with no outstanding concerns. This proposal is now **accepted**; merging is the next (out-of-band) step."
	msgFinishedPostpone = "The final comment period has elapsed. This proposal is now **postponed**."
	msgFinishedClose    = "The final comment period has elapsed. This proposal is now **closed**."
)
