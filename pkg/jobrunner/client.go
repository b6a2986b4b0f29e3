package jobrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// Client is the thin interface over the cluster batch API. Implementations
// must keep Delete idempotent: deleting an already-deleted handle succeeds.
type Client interface {
	// Submit creates the job and returns a handle to the created instance.
	Submit(ctx context.Context, job *batchv1.Job) (Handle, error)

	// Status reports one observation of the submitted job.
	Status(ctx context.Context, handle Handle) (Status, error)

	// Logs collects the pod logs for the job, best-effort.
	Logs(ctx context.Context, handle Handle) (string, error)

	// Delete removes the job and its pods from the cluster.
	Delete(ctx context.Context, handle Handle) error
}

// submitBackoff bounds the retry of transient submission failures.
var submitBackoff = wait.Backoff{
	Steps:    3,
	Duration: 2 * time.Second,
	Factor:   2.0,
}

// KubeClient implements Client over a Kubernetes clientset.
type KubeClient struct {
	client kubernetes.Interface
}

// NewKubeClient returns a cluster job client backed by the given clientset.
func NewKubeClient(client kubernetes.Interface) *KubeClient {
	return &KubeClient{client: client}
}

func (c *KubeClient) Submit(ctx context.Context, job *batchv1.Job) (Handle, error) {
	var created *batchv1.Job
	err := wait.ExponentialBackoff(submitBackoff, func() (bool, error) {
		var err error
		created, err = c.client.BatchV1().Jobs(job.Namespace).Create(ctx, job, metav1.CreateOptions{})
		if err == nil {
			return true, nil
		}
		if retriable(err) {
			return false, nil
		}
		return false, err
	})
	if err != nil {
		op := fmt.Sprintf("create job %s.%s", job.Name, job.Namespace)
		if wait.Interrupted(err) {
			return Handle{}, TransientSubmission(op, fmt.Errorf("api server unavailable after %d attempts", submitBackoff.Steps))
		}
		return Handle{}, Submission(op, err)
	}

	return Handle{
		Name:        created.GetName(),
		Namespace:   created.GetNamespace(),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (c *KubeClient) Status(ctx context.Context, handle Handle) (Status, error) {
	job, err := c.client.BatchV1().Jobs(handle.Namespace).Get(ctx, handle.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return Status{Phase: PhaseNotFound}, nil
		}
		return Status{}, fmt.Errorf("get job %s.%s: %w", handle.Name, handle.Namespace, err)
	}

	for _, condition := range job.Status.Conditions {
		if condition.Status != corev1.ConditionTrue {
			continue
		}
		switch condition.Type {
		case batchv1.JobFailed:
			exitCode, reason := c.containerExit(ctx, handle)
			if reason == "" {
				reason = condition.Message
			}
			return Status{Phase: PhaseFailed, ExitCode: exitCode, Reason: reason}, nil
		case batchv1.JobComplete:
			return Status{Phase: PhaseSucceeded, Reason: condition.Message}, nil
		}
	}

	if job.Status.Active > 0 {
		return Status{Phase: PhaseRunning}, nil
	}
	return Status{Phase: PhasePending}, nil
}

// containerExit reads the backup container's termination state from the job
// pod. Best-effort: a missing pod leaves the exit code at zero and the
// caller falls back to the job condition message.
func (c *KubeClient) containerExit(ctx context.Context, handle Handle) (int32, string) {
	pods, err := c.pods(ctx, handle)
	if err != nil {
		return 0, ""
	}

	for _, pod := range pods {
		for _, status := range pod.Status.ContainerStatuses {
			if terminated := status.State.Terminated; terminated != nil {
				return terminated.ExitCode, fmt.Sprintf("container exit %d", terminated.ExitCode)
			}
		}
	}
	return 0, ""
}

func (c *KubeClient) Logs(ctx context.Context, handle Handle) (string, error) {
	pods, err := c.pods(ctx, handle)
	if err != nil {
		return "", err
	}
	if len(pods) < 1 {
		return "", fmt.Errorf("no pods found for job %s.%s", handle.Name, handle.Namespace)
	}

	buf := new(bytes.Buffer)
	for _, pod := range pods {
		req := c.client.CoreV1().Pods(handle.Namespace).GetLogs(pod.GetName(), &corev1.PodLogOptions{})
		stream, err := req.Stream(ctx)
		if err != nil {
			return buf.String(), fmt.Errorf("read %s logs: %w", pod.GetName(), err)
		}

		_, err = io.Copy(buf, stream)
		stream.Close()
		if err != nil {
			return buf.String(), fmt.Errorf("read %s logs: %w", pod.GetName(), err)
		}
	}

	return buf.String(), nil
}

func (c *KubeClient) Delete(ctx context.Context, handle Handle) error {
	policy := metav1.DeletePropagationBackground
	err := c.client.BatchV1().Jobs(handle.Namespace).Delete(ctx, handle.Name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete job %s.%s: %w", handle.Name, handle.Namespace, err)
	}
	return nil
}

func (c *KubeClient) pods(ctx context.Context, handle Handle) ([]corev1.Pod, error) {
	selector := fmt.Sprintf("job-name=%s", handle.Name)
	pods, err := c.client.CoreV1().Pods(handle.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods for job %s.%s: %w", handle.Name, handle.Namespace, err)
	}
	return pods.Items, nil
}

func retriable(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err)
}
