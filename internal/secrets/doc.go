// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package secrets stores gateway credentials in the OS keychain.

Tokens are kept per gateway URL so one machine can talk to several gateways:

	kc := secrets.NewKeychain()
	if err := kc.Set(ctx, secrets.TokenKey(url), token); err != nil {
	    return err
	}

Supported keychains are macOS Keychain Access, the Linux Secret Service
(GNOME Keyring, KWallet) and the Windows Credential Manager. Lookups that
cannot reach a keychain fail with ErrBackendUnavailable; callers that only
want a best-effort fallback treat it like ErrSecretNotFound.
*/
package secrets
