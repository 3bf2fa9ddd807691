// Package cmd defines the pagewatch CLI: serve runs the HTTP trigger
// surface, check performs one check for cron-style schedulers and
// notify-test sends a fixed message through every configured notifier.
package cmd
