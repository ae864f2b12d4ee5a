// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command detectord (see cmd/detectord) drives a flat-panel X-ray
// detector's acquisition pipeline. This root package holds nothing but
// the end-to-end integration tests exercising the ring, sequence engine,
// frame protocol, control protocol and watchdog packages together; the
// daemon's entry point lives under cmd/detectord.
package detectord
