package jobrunner

import (
	"fmt"
	"strconv"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilrand "k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/utils/ptr"

	"github.com/gsingh-io/pgbackup/pkg/config"
	"github.com/gsingh-io/pgbackup/pkg/secrets"
)

const (
	containerName = "pg-s3-backup"

	// nameSuffixLen is the length of the random suffix appended to the job
	// name to avoid collision across concurrent or retried runs.
	nameSuffixLen = 5

	// maxPrefixLen keeps the generated name within the 63 character
	// DNS label limit of job names.
	maxPrefixLen = 38
)

// BuildJob derives an immutable job manifest from a validated configuration
// and resolved credential references. Pure: no cluster calls are made, and
// secret values appear only as SecretKeyRef bindings.
func BuildJob(cfg *config.Config, creds *secrets.Credentials) (*batchv1.Job, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	resources, err := buildResources(cfg.Job.Resources)
	if err != nil {
		return nil, err
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      uniqueName(cfg.Job.NamePrefix),
			Namespace: cfg.Job.Namespace,
			Labels: map[string]string{
				"app":        "pg-s3-backup",
				"managed-by": "pgbackup",
			},
		},
		Spec: batchv1.JobSpec{
			// Failures surface in the outcome; the cluster never retries.
			BackoffLimit: ptr.To[int32](0),
			// Backstop in case this process dies before cleanup runs.
			TTLSecondsAfterFinished: ptr.To(cfg.Job.TTLAfterFinish),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "pg-s3-backup"},
				},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: cfg.Job.ServiceAccount,
					Containers: []corev1.Container{
						{
							Name:            containerName,
							Image:           cfg.Job.Image,
							ImagePullPolicy: corev1.PullPolicy(cfg.Job.ImagePullPolicy),
							Args:            buildArgs(cfg),
							Env:             buildEnv(creds),
							Resources:       resources,
						},
					},
				},
			},
		},
	}

	return job, nil
}

func validate(cfg *config.Config) error {
	if cfg.Job.Image == "" {
		return InvalidConfiguration("job.image", "must not be empty")
	}
	if cfg.Job.NamePrefix == "" {
		return InvalidConfiguration("job.name_prefix", "must not be empty")
	}
	if len(cfg.Job.NamePrefix) > maxPrefixLen {
		return InvalidConfiguration("job.name_prefix", fmt.Sprintf("must be at most %d characters", maxPrefixLen))
	}
	if cfg.Database.Host == "" {
		return InvalidConfiguration("database.host", "must not be empty")
	}
	if cfg.Database.Port < config.MinPort || cfg.Database.Port > config.MaxPort {
		return InvalidConfiguration("database.port", fmt.Sprintf("%d is out of range", cfg.Database.Port))
	}
	if cfg.Database.User == "" {
		return InvalidConfiguration("database.user", "must not be empty")
	}
	if cfg.Storage.Bucket == "" {
		return InvalidConfiguration("storage.bucket", "must not be empty")
	}
	return nil
}

// uniqueName combines the stable prefix with a UTC timestamp and a random
// suffix so that two builds never collide, including within one second.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s-%s",
		prefix,
		time.Now().UTC().Format("20060102-150405"),
		utilrand.String(nameSuffixLen),
	)
}

// buildArgs assembles the backup container arguments. Secret values are
// never part of the argument list.
func buildArgs(cfg *config.Config) []string {
	args := []string{
		"--host", cfg.Database.Host,
		"--port", strconv.Itoa(cfg.Database.Port),
		"--user", cfg.Database.User,
		"--bucket", cfg.Storage.Bucket,
		"--aws-profile", cfg.Storage.Profile,
		"--aws-region", cfg.Storage.Region,
	}

	if cfg.Database.BackupAll {
		args = append(args, "--all")
	} else {
		args = append(args, "--dbname", cfg.Database.Name)
	}
	if cfg.Storage.Prefix != "" {
		args = append(args, "--prefix", cfg.Storage.Prefix)
	}
	if cfg.Storage.Endpoint != "" {
		args = append(args, "--aws-endpoint-url", cfg.Storage.Endpoint)
	}
	if cfg.Storage.Compress {
		args = append(args, "--compress")
	}
	if cfg.Storage.KeepLocal {
		args = append(args, "--keep-local")
	}

	return args
}

// buildEnv binds the sensitive entries by secret reference; the kubelet
// materializes the values at pod start.
func buildEnv(creds *secrets.Credentials) []corev1.EnvVar {
	return []corev1.EnvVar{
		secretEnv("PGPASSWORD", creds.Password),
		secretEnv("AWS_ACCESS_KEY_ID", creds.AccessKey),
		secretEnv("AWS_SECRET_ACCESS_KEY", creds.SecretKey),
	}
}

func secretEnv(name string, ref secrets.Reference) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: ref.SecretName},
				Key:                  ref.Key,
			},
		},
	}
}

func buildResources(res config.Resources) (corev1.ResourceRequirements, error) {
	requirements := corev1.ResourceRequirements{}

	requests, err := buildResourceList(res.Requests)
	if err != nil {
		return requirements, InvalidConfiguration("job.resources.requests", err.Error())
	}
	limits, err := buildResourceList(res.Limits)
	if err != nil {
		return requirements, InvalidConfiguration("job.resources.limits", err.Error())
	}

	requirements.Requests = requests
	requirements.Limits = limits
	return requirements, nil
}

func buildResourceList(list config.ResourceList) (corev1.ResourceList, error) {
	if list.CPU == "" && list.Memory == "" {
		return nil, nil
	}

	out := corev1.ResourceList{}
	if list.CPU != "" {
		quantity, err := resource.ParseQuantity(list.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu %q: %v", list.CPU, err)
		}
		out[corev1.ResourceCPU] = quantity
	}
	if list.Memory != "" {
		quantity, err := resource.ParseQuantity(list.Memory)
		if err != nil {
			return nil, fmt.Errorf("memory %q: %v", list.Memory, err)
		}
		out[corev1.ResourceMemory] = quantity
	}
	return out, nil
}
