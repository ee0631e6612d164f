// Package logging holds the slog conventions of calbridge: attribute keys,
// attribute constructors, logger construction from a level and a format,
// and the helpers that keep user identifiers and tokens out of log output.
//
//	logger := logging.WithOperation(slog.Default(), "fetch")
//	logger.Info("fetched events",
//	    logging.Provider("GOOGLE"),
//	    logging.UserHash(userID),
//	    logging.Count(12))
//
// User identifiers are logged only as hashes (UserHash) and tokens only by
// length (SanitizeToken).
package logging
