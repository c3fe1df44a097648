// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the apideploy command line using Cobra. It loads
// configuration, assembles the deployment pipeline from it and renders the
// outcome. Deployment logic lives in internal/pipeline and internal/deploy.
package cli
