package prompts

// EmptyResponseFallback is the user-facing message returned when the
// model produces no usable text for a turn. A reply is never empty.
const EmptyResponseFallback = "Sorry, I couldn't put together a response just now. Could you try asking again?"

// FollowUpQuestion is appended to a reply when a tool ran during the turn
// and the reply does not already end the exchange with a question.
const FollowUpQuestion = "Anything else you'd like to update?"

// DegradedToolReply is used when the model became unreachable after tools
// had already run, so the user still learns their changes were applied.
const DegradedToolReply = "I made the updates you asked for, but I'm having trouble finishing my reply right now."
