// Package notifier announces marathons whose registration is about to close.
//
// Posts go to Twitter through the v1.1 statuses API with OAuth1 user credentials,
// one post per marathon within the 280 character limit. Telegram receives a single
// HTML digest grouped by region through the Bot API. Dry-run mode writes the
// posts to a writer instead.
package notifier
