// Package harness runs catalog test scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: rules.cue          # or rules/ (a directory), or inline source:
//	facts: { health: 80, mood: angry }
//	steps:
//	  - peek: best
//	    expect: { count: 1, rules: [taunt] }
//	  - pick: bucket
//	    bucket: combat
//	    expect: { payloads: ["hp 80"] }
//	  - set: { health: 10 }
//	assertions:
//	  - type: picked
//	    rule: taunt
//	  - type: final_facts
//	    facts: { taunts: 1 }
//
// Steps peek or pick in one of three modes: best, valid or bucket. Best
// and valid scans cover the whole catalog unless a range is given.
//
// # Assertion Types
//
//   - picked: a rule was picked, optionally with a given payload
//   - pick_order: rules were first picked in the given order
//   - pick_count: a rule was picked exactly N times
//   - final_facts: facts hold the given values after the last step
//
// # Deterministic Testing
//
// Every scenario runs on a fresh engine whose pick ids come from a
// sequence generator ("pick-1", "pick-2", ...) and whose seq numbers
// start at 1. Traces are therefore identical across runs and can be
// compared against golden files with RunWithGolden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/combat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
