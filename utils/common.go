package utils

// KNOTTOL is the default distance below which two knot values are the same line
const KNOTTOL = 1.e-12

type EvalOp uint8

const (
	Equal EvalOp = iota
	Less
	Greater
	LessOrEqual
	GreaterOrEqual
)
