// Package engine implements the deployment orchestration engine: a
// five-stage provisioning pipeline (connect, create credentials, generate
// workflow, deploy, activate) against a remote workflow-automation backend,
// with compensating rollback, classified errors, and bounded retry.
//
// The engine owns no persistence and no scheduling. One call to
// Deployer.Deploy is one attempt; the returned DeploymentResult is the only
// artifact the caller needs to keep. The RemoteClient interface defined
// here is the engine's entire view of the backend; pkg/remote provides the
// HTTP implementation.
package engine
