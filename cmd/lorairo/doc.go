// Command lorairo is the command-line front end for a LoRAIro dataset
// project. It works on the same project directory and tag database as the
// HTTP server and shares its configuration.
//
// Usage:
//
//	lorairo [--config lorairo.yaml] [--verbose] <command>
//
// Commands:
//
//	search                  Print one page of images matching the filter flags.
//	import <dir|file>...    Copy images into the project and register them.
//	annotations load <f>    Store every result in a results file.
//	annotations apply <id>  Store results for selected images only.
//	tag resolve <tag>...    Resolve tags to dictionary ids.
//	tag show <id>           Show one dictionary entry.
//	export --dest <dir>     Write matching images with .txt and .caption sidecars.
//	stats                   Show library counts.
//
// Every command that prints results accepts --output table|json|yaml. The
// default is a table on a terminal and JSON when piped.
//
// Environment:
//
// A .env file in the working directory is loaded before configuration.
// LORAIRO_PROJECT_DIR, LORAIRO_TAG_DB_PATH and the other LORAIRO_*
// variables override lorairo.yaml.
package main
