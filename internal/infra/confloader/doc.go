// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults already present in the target struct
//  2. YAML file
//  3. .env file (optional; never overrides the real environment)
//  4. Environment variables, CAMHUB_<SECTION>_<KEY>
//  5. Explicit overrides from LoadMap (command-line flags)
//
// Watcher reports changes to the configuration file so a running server
// can apply the settings that are safe to change live.
package confloader
