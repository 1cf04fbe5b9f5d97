package render

// VertexSource is the full-screen quad vertex stage.
const VertexSource = `#version 300 es
in vec2 a_position;
out vec2 v_uv;
void main() {
    v_uv = a_position * 0.5 + 0.5;
    gl_Position = vec4(a_position, 0.0, 1.0);
}
`

// FragmentSource samples the 1-D gradient texture at a position driven by layered
// value noise blended across two wave bands, with vertical blur and a vignette.
// The software device implements the same program in flowColour.
const FragmentSource = `#version 300 es
precision highp float;
in vec2 v_uv;
out vec4 outColor;

uniform sampler2D u_gradient;
uniform float u_time;
uniform float u_flow;
uniform float u_noiseScale;
uniform float u_blurExp;
uniform float u_blurMax;
uniform float u_vignette;
uniform vec2 u_waveCenter;
uniform vec2 u_waveHeight;
uniform vec2 u_waveOffset;

float hash(vec2 p) {
    p = fract(p * vec2(123.34, 456.21));
    p += dot(p, p + 45.32);
    return fract(p.x * p.y);
}

float noise(vec2 p) {
    vec2 i = floor(p);
    vec2 f = fract(p);
    vec2 u = f * f * (3.0 - 2.0 * f);
    return mix(mix(hash(i), hash(i + vec2(1.0, 0.0)), u.x),
               mix(hash(i + vec2(0.0, 1.0)), hash(i + vec2(1.0, 1.0)), u.x), u.y);
}

float fbm(vec2 p) {
    float v = 0.0;
    float a = 0.5;
    for (int i = 0; i < 4; i++) {
        v += a * noise(p);
        p *= 2.0;
        a *= 0.5;
    }
    return v;
}

float band(vec2 uv, float centre, float height, float offset) {
    float y = centre + sin(uv.x * 6.2831 + u_time * 0.3 + offset) * 0.06;
    float d = (uv.y - y) / max(height, 0.001);
    return exp(-d * d);
}

void main() {
    vec2 p = v_uv * u_noiseScale + vec2(u_time * 0.04, u_time * 0.02) * u_flow;
    float n = fbm(p);
    float w = band(v_uv, u_waveCenter.x, u_waveHeight.x, u_waveOffset.x)
            - band(v_uv, u_waveCenter.y, u_waveHeight.y, u_waveOffset.y);
    float t = clamp(v_uv.x * 0.6 + (n - 0.5) * u_flow * 0.6 + w * 0.2 + 0.2, 0.0, 1.0);
    float blur = pow(v_uv.y, u_blurExp) * u_blurMax;
    vec3 c = (texture(u_gradient, vec2(t - blur, 0.5)).rgb
            + texture(u_gradient, vec2(t, 0.5)).rgb
            + texture(u_gradient, vec2(t + blur, 0.5)).rgb) / 3.0;
    vec2 d = v_uv - 0.5;
    c *= 1.0 - u_vignette * dot(d, d) * 2.0;
    outColor = vec4(c, 1.0);
}
`
