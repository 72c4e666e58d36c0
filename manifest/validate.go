package manifest

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// ContainerImage is one container image found in a manifest.
type ContainerImage struct {
	Kind      string `json:"kind"`
	Workload  string `json:"workload"`
	Container string `json:"container"`
	Image     string `json:"image"`
	Init      bool   `json:"init,omitempty"`
}

type typeMeta struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
}

// Validate checks that every document in content is valid YAML and that
// workload documents decode into their Kubernetes API types.
func Validate(content []byte) error {
	_, err := Images(content)
	return err
}

// Images lists the container images declared by workload documents in content.
func Images(content []byte) ([]ContainerImage, error) {
	docs, err := splitDocuments(content)
	if err != nil {
		return nil, err
	}

	var images []ContainerImage
	for i, doc := range docs {
		var node yaml.Node
		if err := yaml.Unmarshal(doc, &node); err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidManifest, "invalid YAML document",
				map[string]interface{}{"document": i})
		}

		var meta typeMeta
		if err := node.Decode(&meta); err != nil {
			// Non-mapping documents (lists, scalars) carry no workload.
			continue
		}

		spec, err := podSpecOf(meta.Kind, doc)
		if err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidManifest, "document does not match its kind",
				map[string]interface{}{"document": i, "kind": meta.Kind, "name": meta.Metadata.Name})
		}
		if spec == nil {
			continue
		}

		for _, c := range spec.InitContainers {
			images = append(images, ContainerImage{Kind: meta.Kind, Workload: meta.Metadata.Name, Container: c.Name, Image: c.Image, Init: true})
		}
		for _, c := range spec.Containers {
			images = append(images, ContainerImage{Kind: meta.Kind, Workload: meta.Metadata.Name, Container: c.Name, Image: c.Image})
		}
	}

	return images, nil
}

// podSpecOf decodes doc as kind and returns its pod spec, or nil for kinds
// that do not run containers.
func podSpecOf(kind string, doc []byte) (*corev1.PodSpec, error) {
	switch kind {
	case "Deployment":
		var obj appsv1.Deployment
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec.Template.Spec, nil
	case "StatefulSet":
		var obj appsv1.StatefulSet
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec.Template.Spec, nil
	case "DaemonSet":
		var obj appsv1.DaemonSet
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec.Template.Spec, nil
	case "Pod":
		var obj corev1.Pod
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec, nil
	case "Job":
		var obj batchv1.Job
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec.Template.Spec, nil
	case "CronJob":
		var obj batchv1.CronJob
		if err := k8syaml.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}
		return &obj.Spec.JobTemplate.Spec.Template.Spec, nil
	default:
		return nil, nil
	}
}

// splitDocuments splits a multi-document YAML stream, dropping empty documents.
func splitDocuments(content []byte) ([][]byte, error) {
	reader := k8syaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(content)))

	var docs [][]byte
	for {
		doc, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidManifest, "failed to split YAML documents")
		}
		if isBlank(doc) {
			continue
		}
		docs = append(docs, doc)
	}
}

func isBlank(doc []byte) bool {
	for _, line := range strings.Split(string(doc), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && trimmed != "---" && !strings.HasPrefix(trimmed, "#") {
			return false
		}
	}
	return true
}
