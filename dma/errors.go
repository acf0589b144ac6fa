package dma

import "errors"

// errInvalidActionSelection is returned when the LLM's structured response
// is missing a selected_action, triggering the fallback-to-PONDER path.
var errInvalidActionSelection = errors.New("dma: action selection response missing selected_action")

// errInvalidVerdict is returned when an Ethical/CommonSense LLM response is
// missing a decision field.
var errInvalidVerdict = errors.New("dma: verdict response missing decision")
