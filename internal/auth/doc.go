// Package auth verifies the identity of a caller and the integrity of the
// signed request attributes.
//
// Authentication runs three checks in order and stops at the first failure:
// the access key is resolved through a Directory, the replay policy is
// evaluated, and the signature is recomputed with the secret of the resolved
// caller. Every failure is reported as a *RejectError; directory faults are
// treated exactly like unknown access keys.
//
//	authn := auth.NewAuthenticator(directory, guard, engine, auth.WithLogger(logger))
//	caller, err := authn.Authenticate(ctx, sig)
//	if err != nil {
//	    // respond 403
//	}
package auth
