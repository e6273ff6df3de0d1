package scene

// frameBinding is the uniform block slot of the per-frame constants.
const frameBinding = 0

// modelsBinding matches the storage slot the cull pass reads models from.
const modelsBinding = 2

const solidVertexShader = `#version 460 core

layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aColor;
layout(location = 2) in vec2 aUV;
layout(location = 3) in vec3 aNormal;
layout(location = 4) in vec4 aTangent;
layout(location = 5) in float aLayer;

layout(std140, binding = 0) uniform Frame {
    mat4 uViewProj;
    vec4 uLightDir;  // xyz direction, w ambient
    vec4 uFogColor;  // rgb color, a density
};

layout(std430, binding = 2) readonly buffer Models {
    mat4 models[];
};

out vec3 vColor;
out vec3 vNormal;
out float vDepth;

void main() {
    // FirstInstance carries the draw index.
    mat4 model = models[gl_BaseInstance];
    vec4 world = model * vec4(aPosition, 1.0);
    gl_Position = uViewProj * world;
    vColor = aColor;
    vNormal = mat3(model) * aNormal;
    vDepth = gl_Position.w;
}
`

const solidFragmentShader = `#version 460 core

in vec3 vColor;
in vec3 vNormal;
in float vDepth;

layout(std140, binding = 0) uniform Frame {
    mat4 uViewProj;
    vec4 uLightDir;
    vec4 uFogColor;
};

out vec4 FragColor;

void main() {
    float diffuse = max(dot(normalize(vNormal), normalize(uLightDir.xyz)), 0.0);
    vec3 color = vColor * (uLightDir.w + (1.0 - uLightDir.w) * diffuse);
    float fog = 1.0 - exp(-uFogColor.a * vDepth);
    FragColor = vec4(mix(color, uFogColor.rgb, clamp(fog, 0.0, 1.0)), 1.0);
}
`

const depthFragmentShader = `#version 460 core

void main() {
}
`
