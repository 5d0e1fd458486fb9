// Package facts holds the world state that rules are matched against.
//
// A fact is a dense integer id (FactID) mapped to a float64 value inside a
// Store. String facts do not carry text: they hold the integer id handed out
// by a StringTable, so every comparison in the matcher is numeric.
//
// The Store never grows. It is sized once from the catalog's fact count and
// released on reload. Id 0 is reserved for the dev_null fact, the sink that
// unknown fact names resolve to.
//
// The text dump format (SaveCSV / LoadCSV) is:
//
//	Type,  Name,  Value
//	Value,  health,  42
//	String,  mood,  angry
package facts
