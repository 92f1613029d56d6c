// Package core validates CSV files against schema templates and routes
// invalid files through cached or generated correction scripts.
//
// This package holds all domain logic and is independent of transport and
// storage. Web handlers, the CLI and tests drive it through the same types;
// persistence, caching, generation and script execution are injected as
// interfaces.
//
// # Flow
//
//  1. [Detector] guesses the encoding from a byte prefix and the delimiter
//     from the first line.
//  2. [Loader] parses the file into a [Dataset], retrying once with Latin-1
//     when UTF-8 decoding fails.
//  3. [Hasher] derives the structural fingerprint from the column-name set.
//  4. [Validator] checks the dataset against a [Template] and produces a
//     [Report] of [Finding] values; [RenderReport] turns it into text.
//  5. [Pipeline] resolves a correction script for invalid files (manual,
//     [ScriptCache], then [CorrectionGenerator]), applies it through a
//     [Corrector], re-validates and hands the result to an [IngestionSink].
//
// # Templates
//
// Templates are JSON, YAML or TOML documents with a "colunas" object keyed
// by canonical column name:
//
//	{
//	  "colunas": {
//	    "data_transacao": {"obrigatorio": true, "aliases": ["Data"], "tipo_dado": "DATE"},
//	    "tipo": {"validacao": {"valores_permitidos": ["CREDITO", "DEBITO"]}}
//	  }
//	}
//
// Declaration order is preserved and drives the order of findings.
//
// # Error Handling
//
// Pipeline failures are typed: [ReadError], [GenerationFailure],
// [ExecutionContractViolation] and [PersistenceFailure]. [MapError] turns
// any error into a [UserMessage] with a support code.
package core
